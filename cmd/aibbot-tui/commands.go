package main

import (
	"fmt"
	"strconv"
	"strings"
)

// commandKind names what a line typed into the input does.
type commandKind int

const (
	cmdMessage commandKind = iota
	cmdQuit
	cmdPolicy
	cmdFAQ
	cmdRegion
	cmdHasChild
	cmdAddChild
	cmdAsset
	cmdLogin
	cmdSignup
	cmdLogout
	cmdHelp
)

type command struct {
	kind commandKind
	args []string
	text string
}

// parseCommand interprets a submitted input line. Anything that is not a
// known command is sent as a chat message.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty input")
	}

	head, args := strings.ToLower(fields[0]), fields[1:]
	switch head {
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "logout":
		return command{kind: cmdLogout}, nil
	case "p":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: p <policy id>")
		}
		return command{kind: cmdPolicy, args: args}, nil
	case "faq":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: faq <number>")
		}
		if _, err := strconv.Atoi(args[0]); err != nil {
			return command{}, fmt.Errorf("faq number must be numeric: %q", args[0])
		}
		return command{kind: cmdFAQ, args: args}, nil
	case "region":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: region <구>")
		}
		return command{kind: cmdRegion, args: args}, nil
	case "child":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: child <유|무>")
		}
		return command{kind: cmdHasChild, args: args}, nil
	case "kid":
		if len(args) != 2 {
			return command{}, fmt.Errorf("usage: kid <남|여> <YYYY-MM-DD>")
		}
		return command{kind: cmdAddChild, args: args}, nil
	case "asset":
		// Brackets such as "1억 미만" contain a space.
		if len(args) == 0 {
			return command{}, fmt.Errorf("usage: asset <구간>")
		}
		return command{kind: cmdAsset, args: []string{strings.Join(args, " ")}}, nil
	case "login":
		if len(args) != 2 {
			return command{}, fmt.Errorf("usage: login <id> <password>")
		}
		return command{kind: cmdLogin, args: args}, nil
	case "signup":
		if len(args) < 2 || len(args) > 3 {
			return command{}, fmt.Errorf("usage: signup <id> <password> [email]")
		}
		return command{kind: cmdSignup, args: args}, nil
	}
	return command{kind: cmdMessage, text: line}, nil
}

const helpText = "1/2/3 메뉴 · s 동기화 · esc 닫기 · p <id> 정책 상세 · faq <n> · " +
	"region <구> · child <유|무> · kid <남|여> <YYYY-MM-DD> · asset <구간> · " +
	"login/signup <id> <pw> · logout · quit"
