// Package ledger ведёт учёт задач.
//
// Ledger отвечает за:
//   - создание scheduled / recurring / subscribed задач
//   - выполнение попыток с классификацией исхода и retry-политикой
//   - поддержание инварианта "не более одного незавершённого ребёнка"
//     у активной recurring задачи
//   - восстановление задач, застрявших в executing после рестарта
//   - retention-очистку (служебная purge-задача)
//
// Каждый переход статуса выполняется под блокировкой строки задачи
// в одной транзакции; журнал executions — append-only.
package ledger
