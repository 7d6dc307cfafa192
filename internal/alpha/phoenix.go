package alpha

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// PhoenixList is the deterministic date-keyed target list. No computed
// gates: the targets come verbatim from an external text specification.
type PhoenixList struct {
	targets map[domain.Day][]string
}

// LoadPhoenixList parses the target file. Format: one entry per line,
// `YYYYMMDD SYMBOL[ SYMBOL...]`; blank lines and #-comments are ignored.
func LoadPhoenixList(path string) (*PhoenixList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open phoenix list: %w", err)
	}
	defer f.Close()

	list := &PhoenixList{targets: make(map[domain.Day][]string)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, &domain.ConfigError{
				Field:  "phoenix_list",
				Reason: fmt.Sprintf("line %d: want date and symbols, got %q", lineNo, line),
			}
		}
		day, err := domain.ParseDay(fields[0])
		if err != nil {
			return nil, &domain.ConfigError{
				Field:  "phoenix_list",
				Reason: fmt.Sprintf("line %d: bad date %q", lineNo, fields[0]),
			}
		}
		list.targets[day] = append(list.targets[day], fields[1:]...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read phoenix list: %w", err)
	}

	for day := range list.targets {
		sort.Strings(list.targets[day])
	}
	return list, nil
}

// TargetsFor returns the symbols listed for a day, empty when none.
func (l *PhoenixList) TargetsFor(day domain.Day) []string {
	return l.targets[day]
}

// Days returns every listed day in ascending order.
func (l *PhoenixList) Days() []domain.Day {
	out := make([]domain.Day, 0, len(l.targets))
	for d := range l.targets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
