// Package dispatch содержит главный цикл движка.
//
// Dispatcher связывает остальные компоненты: broker (события),
// ledger (выполнение задач), orchestrator (таймауты процессов) и
// idler (сон между проходами). Забор due задач идёт через
// FOR UPDATE SKIP LOCKED, поэтому несколько диспетчеров безопасно
// делят одну базу.
package dispatch
