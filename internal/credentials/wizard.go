// Package credentials runs the interactive prompt that fills in force.json.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"forcecode/internal/apperrors"
	"forcecode/internal/config"
)

// LoginURL is one org type offered by the wizard.
type LoginURL struct {
	Title string
	URL   string
}

// LoginURLs are the choices, numbered from 1.
var LoginURLs = []LoginURL{
	{Title: "Production / Developer", URL: config.DefaultLoginURL},
	{Title: "Sandbox / Test", URL: "https://test.salesforce.com"},
}

// Wizard prompts for credentials on a line-oriented terminal.
type Wizard struct {
	in           *bufio.Reader
	out          io.Writer
	readPassword func() (string, error)
}

// New creates a Wizard. When in is a terminal the password is read without
// echo.
func New(in io.Reader, out io.Writer) *Wizard {
	w := &Wizard{in: bufio.NewReader(in), out: out}
	w.readPassword = w.readLine
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		w.readPassword = func() (string, error) {
			secret, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(w.out)
			return string(secret), err
		}
	}
	return w
}

// Run asks for every setting, offering current values as defaults, and
// returns the updated project.
func (w *Wizard) Run(current config.Project) (config.Project, error) {
	p := current

	username, err := w.ask(fmt.Sprintf("Please enter your SFDC username [%s]: ", current.Username))
	if err != nil {
		return current, err
	}
	p.Username = orDefault(username, current.Username)
	if p.Username == "" {
		return current, apperrors.Validation("username", "No Username")
	}

	fmt.Fprint(w.out, "Please enter your SFDC password and token: ")
	password, err := w.readPassword()
	if err != nil {
		return current, fmt.Errorf("read password: %w", err)
	}
	p.Password = orDefault(strings.TrimSpace(password), current.Password)
	if p.Password == "" {
		return current, apperrors.Validation("password", "No Password")
	}

	p.URL, err = w.chooseURL()
	if err != nil {
		return current, err
	}

	answer, err := w.ask("Automatically deploy/compile files on save? (yes/no) [no]: ")
	if err != nil {
		return current, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		p.AutoCompile = true
	default:
		p.AutoCompile = false
	}
	return p, nil
}

func (w *Wizard) chooseURL() (string, error) {
	for i, u := range LoginURLs {
		fmt.Fprintf(w.out, "  %d) %s  %s\n", i+1, u.Title, u.URL)
	}
	choice, err := w.ask("Choose an org type [1]: ")
	if err != nil {
		return "", err
	}
	if choice == "" {
		return LoginURLs[0].URL, nil
	}
	for i, u := range LoginURLs {
		if choice == fmt.Sprint(i+1) {
			return u.URL, nil
		}
	}
	return "", apperrors.Validation("url", fmt.Sprintf("Unknown org type: %s", choice))
}

func (w *Wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	return w.readLine()
}

// readLine returns one trimmed line. A final line without a newline counts.
func (w *Wizard) readLine() (string, error) {
	line, err := w.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func orDefault(answer, fallback string) string {
	if answer != "" {
		return answer
	}
	return fallback
}
