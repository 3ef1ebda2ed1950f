package infra

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/deepakjacob/launchk/internal/domain"
)

// ParsePrintOutput parses the brace-nested text `launchctl print` emits:
//
//	gui/501/com.example.job = {
//		state = running
//		pid = 612
//		endpoints = {
//			"com.example.job" = { ... }
//		}
//	}
//
// Lines inside a "services" block are "pid status label" rows. Other lines
// without a key (argument lists and the like) are dropped.
func ParsePrintOutput(data []byte) domain.Record {
	root := domain.Record{}
	stack := []domain.Record{root}
	names := []string{""}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cur := stack[len(stack)-1]

		switch {
		case line == "}":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
				names = names[:len(names)-1]
			}

		case strings.HasSuffix(line, "{"):
			key := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			key = strings.TrimSpace(strings.TrimSuffix(key, "=>"))
			key = strings.TrimSpace(strings.TrimSuffix(key, "="))
			child := domain.Record{}
			cur[unquote(key)] = child
			stack = append(stack, child)
			names = append(names, unquote(key))

		case names[len(names)-1] == "services":
			parseServiceRow(cur, line)

		default:
			key, value, ok := splitKeyValue(line)
			if !ok {
				continue
			}
			cur[key] = value
			if key == "pid" {
				if pid, err := strconv.ParseInt(value, 10, 64); err == nil {
					cur["PID"] = pid
				}
			}
		}
	}
	return root
}

// parseServiceRow handles "612  0  com.example.job" and "-  78  com.example.job".
func parseServiceRow(services domain.Record, line string) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return
	}
	label := unquote(fields[len(fields)-1])
	pid, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		pid = 0
	}
	services[label] = domain.Record{
		"PID":            pid,
		"LastExitStatus": fields[1],
	}
}

func splitKeyValue(line string) (string, string, bool) {
	for _, sep := range []string{" = ", " => "} {
		if i := strings.Index(line, sep); i > 0 {
			return unquote(strings.TrimSpace(line[:i])), unquote(strings.TrimSpace(line[i+len(sep):])), true
		}
	}
	return "", "", false
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// firstBlock returns the top-level block of a parsed print.
func firstBlock(root domain.Record) (domain.Record, bool) {
	for _, key := range root.Keys() {
		if block, ok := root.Dict(key); ok {
			return block, true
		}
	}
	return nil, false
}
