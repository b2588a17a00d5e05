package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// secureWipe safely clears sensitive data from memory
// It overwrites the slice with zeros
func secureWipe(data []byte) {
	if data == nil {
		return
	}
	for i := range data {
		data[i] = 0
	}
}

// askPassword reads a secret from the terminal without echoing it. Long
// inputs such as base64 encoded private keys are supported. When stdin is
// not a terminal, one line is read as is.
func askPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadBytes('\n')
		if err != nil && len(line) == 0 {
			return nil, errors.Wrap(err, "error reading password")
		}
		return trimEOL(line), nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set terminal to raw mode")
	}
	defer func() {
		_ = term.Restore(fd, oldState)
		fmt.Fprintln(os.Stderr)
	}()

	var password []byte
	buffer := make([]byte, 4096) // Large buffer for base64 encoded keys
	for {
		n, err := os.Stdin.Read(buffer)
		if err != nil {
			secureWipe(password)
			return nil, errors.Wrap(err, "error reading password")
		}

		if n > 0 && (buffer[n-1] == '\r' || buffer[n-1] == '\n') {
			password = append(password, buffer[:n-1]...)
			break
		}
		password = append(password, buffer[:n]...)

		if len(password) > 65536 {
			log.Warn("Very large string detected, truncating")
			break
		}
	}
	secureWipe(buffer)
	return password, nil
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// promptToContinue asks a yes/no question on the terminal.
func promptToContinue(question string) bool {
	fmt.Printf("%s (y/n): ", question)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	return response == "y" || response == "yes"
}
