package options

import "fmt"

func errEmpty(flag string) error {
	return fmt.Errorf("--%s must not be empty", flag)
}

func errRange(flag string, v any) error {
	return fmt.Errorf("--%s: value %v is out of range", flag, v)
}
