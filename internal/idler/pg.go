package idler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// wakeChannel — имя канала Postgres LISTEN/NOTIFY.
const wakeChannel = "conveyor_wake"

// PGIdler — Idler поверх Postgres LISTEN/NOTIFY.
//
// Interrupt из любого экземпляра приложения (API, consumer) будит
// диспетчеры всех экземпляров, слушающих ту же базу. Истечение
// timeout остаётся страховкой на случай потерянного уведомления.
type PGIdler struct {
	pool *pgxpool.Pool
}

// NewPGIdler создаёт новый PGIdler.
func NewPGIdler(pool *pgxpool.Pool) *PGIdler {
	return &PGIdler{pool: pool}
}

// Idle держит выделенное соединение на LISTEN до уведомления
// или истечения timeout.
func (i *PGIdler) Idle(ctx context.Context, timeout time.Duration) error {
	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+wakeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", wakeChannel, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err = conn.Conn().WaitForNotification(waitCtx)
	// Соединение возвращается в пул; подписка не должна пережить Idle.
	if _, unlistenErr := conn.Exec(ctx, "UNLISTEN *"); unlistenErr != nil && err == nil {
		err = unlistenErr
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("wait for notification: %w", err)
	}
}

// Interrupt шлёт уведомление всем ожидающим Idle.
func (i *PGIdler) Interrupt(ctx context.Context) error {
	if _, err := i.pool.Exec(ctx, "SELECT pg_notify($1, '')", wakeChannel); err != nil {
		return fmt.Errorf("notify %s: %w", wakeChannel, err)
	}
	return nil
}
