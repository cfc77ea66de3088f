// Package process оркестрирует жизненный цикл внешних процессов.
//
// Процесс проходит машину статусов
//
//	pending → executing → {completing, aborting, timedout} →
//	→ {completed, aborted, failed}
//
// Каждый шаг цикла — инициация, отчёты очереди и executor'у, проверка
// таймаута — выполняется отдельной retryable-задачей с action типа
// "process". Внешняя сторона общается с процессом только через
// Orchestrator.ApplyUpdate; переход completing → completed/failed
// происходит лишь после доставки отчёта очереди.
//
// Все переходы выполняются под блокировкой строки процесса внутри
// одной транзакции, что делает оркестратор безопасным при нескольких
// параллельных диспетчерах.
package process
