// Package idler реализует примитив ожидания диспетчера: сон до
// таймаута с возможностью досрочного пробуждения при появлении
// новой работы.
package idler

import (
	"context"
	"time"
)

// Idler усыпляет цикл диспетчера между проходами.
//
// Idle возвращает управление по истечении timeout, по Interrupt или
// по отмене контекста (только в последнем случае с ошибкой).
type Idler interface {
	Idle(ctx context.Context, timeout time.Duration) error
	Interrupt(ctx context.Context) error
}

// Notifier — внутрипроцессный Idler на канале ёмкости 1.
//
// Параллельные Interrupt'ы схлопываются в одно пробуждение: если
// диспетчер уже разбужен, повторный сигнал не накапливается.
type Notifier struct {
	wake chan struct{}
}

// NewNotifier создаёт новый Notifier.
func NewNotifier() *Notifier {
	return &Notifier{wake: make(chan struct{}, 1)}
}

// Idle ждёт пробуждения, но не дольше timeout.
func (n *Notifier) Idle(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-n.wake:
		return nil
	}
}

// Interrupt будит ожидающего. Никогда не блокируется.
func (n *Notifier) Interrupt(_ context.Context) error {
	select {
	case n.wake <- struct{}{}:
	default:
	}
	return nil
}
