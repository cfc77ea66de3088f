// Package cli содержит команды утилиты conveyor-cli.
//
// Команды сгруппированы по ресурсам: task, schedule, event, process.
// Каждая группа строится фабрикой NewXxxCmd(clientFn, outputFn), что
// позволяет инициализировать клиент после разбора глобальных флагов.
//
// CLI общается с системой только через HTTP API и не импортирует
// внутренние пакеты движка: типы запросов и ответов продублированы
// в client.go.
package cli
