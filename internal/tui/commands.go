package tui

import (
	"fmt"
	"strconv"
	"strings"

	"macro-meal-engine/internal/planner"
)

type commandKind int

const (
	cmdChat commandKind = iota
	cmdCalories
	cmdExclude
	cmdRetry
	cmdHelp
	cmdQuit
)

type command struct {
	kind     commandKind
	text     string
	calories int
}

const helpText = `Commands:
- /calories N: set the daily target (%d-%d)
- /exclude text: replace exclusions, empty clears
- /retry: regenerate now
- /bye: exit
Anything else is sent to the intake assistant.`

// parseCommand classifies one line of input.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdChat, text: line}, nil
	}

	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	switch name {
	case "/calories":
		n, err := strconv.Atoi(args)
		if err != nil {
			return command{}, fmt.Errorf("usage: /calories N (%d-%d)", planner.MinCalories, planner.MaxCalories)
		}
		return command{kind: cmdCalories, calories: n}, nil
	case "/exclude":
		return command{kind: cmdExclude, text: args}, nil
	case "/retry":
		return command{kind: cmdRetry}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/bye", "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s, try /help", name)
	}
}
