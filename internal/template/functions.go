package template

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// now is swapped in tests.
var now = time.Now

// variadic marks a builtin that accepts one or more arguments.
const variadic = -1

type builtin struct {
	arity int
	call  func(args []string) (string, error)
}

var builtins = map[string]builtin{
	"uuid":   {0, func([]string) (string, error) { return uuid.NewString(), nil }},
	"now":    {variadic, callNow},
	"random": {2, callRandom},
	"hex":    {1, callHex},
	"pick":   {variadic, callPick},
	"date":   {variadic, callDate},
}

// evalFunction evaluates expr when it has the form name(args) and name is a
// builtin. The bool reports whether expr was a builtin call at all.
func evalFunction(expr string) (string, bool, error) {
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}
	name := expr[:open]
	b, ok := builtins[name]
	if !ok {
		return "", false, nil
	}

	args := splitArgs(expr[open+1 : len(expr)-1])
	switch {
	case b.arity == variadic:
	case len(args) != b.arity:
		return "", true, fmt.Errorf("%s() takes %d argument(s), got %d", name, b.arity, len(args))
	}

	out, err := b.call(args)
	if err != nil {
		return "", true, fmt.Errorf("%s(): %w", name, err)
	}
	return out, true, nil
}

func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// callNow returns unix seconds, or milliseconds with now(ms).
func callNow(args []string) (string, error) {
	switch {
	case len(args) == 0:
		return strconv.FormatInt(now().Unix(), 10), nil
	case len(args) == 1 && args[0] == "ms":
		return strconv.FormatInt(now().UnixMilli(), 10), nil
	}
	return "", fmt.Errorf("unsupported unit %q", strings.Join(args, ","))
}

// callRandom returns an integer in [lo, hi].
func callRandom(args []string) (string, error) {
	lo, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("lower bound: %w", err)
	}
	hi, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("upper bound: %w", err)
	}
	if lo > hi {
		return "", fmt.Errorf("empty range [%d, %d]", lo, hi)
	}
	return strconv.FormatInt(lo+rand.Int64N(hi-lo+1), 10), nil
}

// callHex returns n random bytes hex encoded, handy for avatar seeds.
func callHex(args []string) (string, error) {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return "", fmt.Errorf("length: %w", err)
	}
	if n <= 0 || n > 512 {
		return "", fmt.Errorf("length %d out of range (1..512)", n)
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(rand.UintN(256))
	}
	return hex.EncodeToString(buf), nil
}

// callPick returns one of its arguments at random.
func callPick(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("needs at least one choice")
	}
	return args[rand.IntN(len(args))], nil
}

// callDate formats the current time. No layout means RFC 3339.
func callDate(args []string) (string, error) {
	layout := time.RFC3339
	if len(args) > 0 {
		// Commas in the layout survive; spaces around them do not.
		layout = strings.Join(args, ",")
	}
	return now().Format(layout), nil
}
