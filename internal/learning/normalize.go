package learning

import "regexp"

// Динамические части сообщений об ошибках, которые не должны влиять
// на группировку: идентификаторы, пути файлов, номера строк.
var (
	uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	pathPattern = regexp.MustCompile(`(/[\w.\-]+){2,}`)
	linePattern = regexp.MustCompile(`line \d+`)
)

// NormalizeMessage убирает динамические части из текста ошибки,
// чтобы повторы одной и той же проблемы давали одинаковый текст.
func NormalizeMessage(msg string) string {
	msg = uuidPattern.ReplaceAllString(msg, "<uuid>")
	msg = pathPattern.ReplaceAllString(msg, "<path>")
	msg = linePattern.ReplaceAllString(msg, "line <num>")
	return msg
}
