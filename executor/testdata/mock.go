//go:build wasip1

// Mock interpreter for testing executor logic without a real language.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o mock.wasm mock.go
//
// Each line of a snippet is one command:
//
//	raise MSG         fail the snippet with MSG
//	host FN {json}    call host function FN and print its result
//	stderr TEXT       write TEXT to stderr
//	set NAME VALUE    remember VALUE
//	get NAME          print a remembered value
//	quit              exit the interpreter
//
// Any other line is printed back.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

var (
	in   = bufio.NewScanner(os.Stdin)
	vars = map[string]string{}
)

func main() {
	if os.Getenv("GORU_SESSION") == "" {
		if len(os.Args) > 1 {
			if err := run(os.Args[len(os.Args)-1]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		return
	}

	fmt.Fprint(os.Stderr, "\x00GORU_READY\x00")

	for in.Scan() {
		var cmd struct {
			Type string `json:"type"`
			Code string `json:"code"`
		}
		if err := json.Unmarshal(in.Bytes(), &cmd); err != nil {
			continue
		}

		if cmd.Type == "exit" {
			break
		}
		if cmd.Type != "exec" {
			continue
		}

		if err := run(cmd.Code); err != nil {
			fmt.Fprintf(os.Stderr, "\x00GORU_ERROR:%s\x00", err)
			continue
		}
		fmt.Fprint(os.Stderr, "\x00GORU_DONE\x00")
	}
}

func run(code string) error {
	for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		word, rest, _ := strings.Cut(line, " ")
		switch word {
		case "raise":
			return fmt.Errorf("%s", rest)
		case "host":
			fn, args, _ := strings.Cut(rest, " ")
			if args == "" {
				args = "{}"
			}
			fmt.Fprintf(os.Stderr, "\x00GORU:{\"fn\":%q,\"args\":%s}\x00", fn, args)
			if !in.Scan() {
				return fmt.Errorf("no response for %s", fn)
			}
			var resp struct {
				Data  any    `json:"data"`
				Error string `json:"error"`
			}
			if err := json.Unmarshal(in.Bytes(), &resp); err != nil {
				return err
			}
			if resp.Error != "" {
				return fmt.Errorf("%s", resp.Error)
			}
			fmt.Println(resp.Data)
		case "stderr":
			fmt.Fprintln(os.Stderr, rest)
		case "set":
			name, value, _ := strings.Cut(rest, " ")
			vars[name] = value
		case "get":
			fmt.Println(vars[rest])
		case "quit":
			os.Exit(0)
		default:
			fmt.Println(line)
		}
	}
	return nil
}
