package commands

import "strings"

// Parser разбирает команды с префиксами / ! и .
type Parser struct {
	validPrefixes []string
}

// NewParser создаёт парсер команд.
func NewParser() *Parser {
	return &Parser{
		validPrefixes: []string{"/", "!", "."},
	}
}

// Parse разбирает текст на команду и аргументы.
// Суффикс "@botname" у команды отбрасывается.
func (p *Parser) Parse(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
