package command

import "strings"

// AppendSliceValue implements the flag.Value interface and allows multiple
// calls to the same variable to append a list, rather than replacing it,
// grounded on cmd/serf/command/agent's AppendSliceValue (its test survives
// in the pack though its implementation does not).
type AppendSliceValue []string

func (s *AppendSliceValue) String() string {
	return strings.Join(*s, ",")
}

func (s *AppendSliceValue) Set(value string) error {
	if *s == nil {
		*s = make([]string, 0, 1)
	}
	*s = append(*s, value)
	return nil
}
