package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/picpocket/picpocket/internal/errors"
)

// PasswordPrompt reads the PostgreSQL password from in. A terminal gets a
// prompt on out and no echo; anything else is read a line at a time.
func PasswordPrompt(in *os.File, out io.Writer) func() (string, error) {
	return func() (string, error) {
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			fmt.Fprint(out, "PostgreSQL password: ")
			password, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", errors.New(err).Component("cli").Category(errors.CategoryConfiguration).Build()
			}
			return string(password), nil
		}
		return readLine(in)
	}
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", errors.New(err).Component("cli").Category(errors.CategoryConfiguration).Build()
		}
		return "", errors.Newf("no password given").Component("cli").Category(errors.CategoryConfiguration).Build()
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}
