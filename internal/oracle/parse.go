package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/Factoria/internal/domain"
)

// proposalWire — команда в том виде, как её может вернуть оракул.
// Поля декодируются терпимо: числа вместо строк, строки вместо чисел.
type proposalWire struct {
	CommandID json.RawMessage `json:"command_id"`
	Action    string          `json:"action"`
	Target    string          `json:"target"`
	Params    struct {
		TargetPoint string          `json:"target_point"`
		ProductID   string          `json:"product_id"`
		TargetLevel json.RawMessage `json:"target_level"`
	} `json:"params"`
	Priority  string `json:"priority"`
	Reasoning string `json:"reasoning"`
}

func (w proposalWire) command() domain.Command {
	return domain.Command{
		CommandID: rawString(w.CommandID),
		Action:    domain.Action(strings.ToLower(strings.TrimSpace(w.Action))),
		Target:    strings.TrimSpace(w.Target),
		Params: domain.CommandParams{
			TargetPoint: strings.TrimSpace(w.Params.TargetPoint),
			ProductID:   strings.TrimSpace(w.Params.ProductID),
			TargetLevel: rawNumber(w.Params.TargetLevel),
		},
		Priority:  w.Priority,
		Reasoning: w.Reasoning,
	}
}

// ParseProposals извлекает команды из ответа оракула.
//
// Поддерживает:
//   - JSON-массив команд
//   - объект-обёртку {"commands": [...]}
//   - одиночный объект команды
//   - markdown-ограждение ``` и текст вокруг JSON
//
// Элементы, которые не удалось декодировать, пропускаются. Фрагмент, из
// которого не извлечено ни одной команды с action, не считается ответом:
// поиск идёт дальше по тексту. Пустой массив не ошибка.
// ErrNoProposals — если подходящее JSON-значение не найдено.
func ParseProposals(text string) ([]domain.Command, error) {
	empty := false
	for _, candidate := range jsonCandidates(stripFence(text)) {
		items, ok := proposalItems([]byte(candidate))
		if !ok {
			continue
		}
		if len(items) == 0 {
			empty = true
			continue
		}
		if cmds := decodeProposals(items); len(cmds) > 0 {
			return cmds, nil
		}
	}
	if empty {
		return []domain.Command{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoProposals, truncate(text, 120))
}

// decodeProposals декодирует элементы, пропуская не-команды.
func decodeProposals(items []json.RawMessage) []domain.Command {
	cmds := make([]domain.Command, 0, len(items))
	for _, item := range items {
		var w proposalWire
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		if strings.TrimSpace(w.Action) == "" {
			continue
		}
		cmds = append(cmds, w.command())
	}
	return cmds
}

// proposalItems раскладывает JSON-значение на элементы-команды.
func proposalItems(data []byte) ([]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, false
		}
		return items, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, false
		}
		if raw, ok := obj["commands"]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, false
			}
			return items, true
		}
		if _, ok := obj["action"]; ok {
			return []json.RawMessage{data}, true
		}
	}
	return nil, false
}

func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimLeft(trimmed, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

// jsonCandidates возвращает сбалансированные JSON-фрагменты текста
// в порядке появления. Скобки внутри строк не учитываются.
func jsonCandidates(text string) []string {
	var out []string
	for start := 0; start < len(text); {
		i := strings.IndexAny(text[start:], "[{")
		if i < 0 {
			break
		}
		i += start
		end, ok := matchBracket(text, i)
		if !ok {
			start = i + 1
			continue
		}
		candidate := text[i : end+1]
		if json.Valid([]byte(candidate)) {
			out = append(out, candidate)
			start = end + 1
			continue
		}
		start = i + 1
	}
	return out
}

// matchBracket ищет закрывающую скобку для text[start].
func matchBracket(text string, start int) (int, bool) {
	var stack []byte
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// rawNumber принимает число или числовую строку; иначе nil.
func rawNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
