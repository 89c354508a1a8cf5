package server

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExchangeKeyword is the reserved token that starts a rate query.
const ExchangeKeyword = "exchange"

// UsageText is the reply to a malformed rate query.
const UsageText = "Invalid command. Usage: exchange N"

// CommandKind classifies a line received from a client.
type CommandKind int

const (
	// CommandBroadcast relays the line to connected clients.
	CommandBroadcast CommandKind = iota
	// CommandRateQuery asks for Days days of exchange rates.
	CommandRateQuery
	// CommandInvalidRateQuery is an exchange command with bad arguments.
	CommandInvalidRateQuery
)

func (k CommandKind) String() string {
	switch k {
	case CommandBroadcast:
		return "broadcast"
	case CommandRateQuery:
		return "rate_query"
	case CommandInvalidRateQuery:
		return "invalid_rate_query"
	default:
		return "unknown"
	}
}

// Command is the parsed form of one client line. Text is set for
// broadcasts, Days for rate queries and Reason for invalid queries.
type Command struct {
	Kind   CommandKind
	Text   string
	Days   int
	Reason string
}

// ParseCommand classifies line. It has no side effects.
//
// A line is a rate query when it starts with the exchange keyword followed by
// the end of the line or whitespace; anything else is broadcast verbatim.
// A rate query needs exactly one argument made of ASCII digits. Values that
// overflow int saturate at math.MaxInt; bounding is left to the rate source.
func ParseCommand(line string) Command {
	rest, ok := cutKeyword(line)
	if !ok {
		return Command{Kind: CommandBroadcast, Text: line}
	}

	args := strings.Fields(rest)
	switch {
	case len(args) == 0:
		return invalid("missing number of days")
	case len(args) > 1:
		return invalid(fmt.Sprintf("expected 1 argument, got %d", len(args)))
	case !isASCIIDigits(args[0]):
		return invalid(fmt.Sprintf("%q is not an unsigned integer", args[0]))
	}

	days, err := strconv.Atoi(args[0])
	if err != nil {
		days = math.MaxInt
	}
	return Command{Kind: CommandRateQuery, Days: days}
}

func cutKeyword(line string) (string, bool) {
	rest, found := strings.CutPrefix(line, ExchangeKeyword)
	if !found {
		return "", false
	}
	if rest == "" {
		return rest, true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return rest, unicode.IsSpace(r)
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func invalid(reason string) Command {
	return Command{Kind: CommandInvalidRateQuery, Reason: reason}
}
