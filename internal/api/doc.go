// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (ledger, broker, orchestrator, репозитории)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request)
//   - schedule_handler.go — обработчики для /schedules
//   - task_handler.go     — обработчики для /tasks и /recurring-tasks
//   - event_handler.go    — обработчики для /events и /subscriptions
//   - executor_handler.go — обработчики для /executors и /queues
//   - process_handler.go  — обработчики для /processes
//
// Каждая запись, порождающая работу для диспетчера, завершается
// Interrupt'ом, чтобы due задачи подхватывались без ожидания poll'а.
package api
