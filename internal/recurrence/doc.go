// Package recurrence реализует чистое вычисление повторяющихся
// расписаний: следующий occurrence для fixed, weekly, monthly и
// logical (cron-подобных) правил.
//
// Структура:
//   - spec.go     — грамматика полей и Specification.Next
//   - schedule.go — диспетчеризация по вариантам domain.Schedule,
//     недельные/месячные интервалы и дисциплина cachedNext
//
// Пакет не имеет побочных эффектов и зависимостей кроме stdlib time:
// текущее время передаётся явно, что делает вычисления полностью
// детерминированными в тестах.
package recurrence
