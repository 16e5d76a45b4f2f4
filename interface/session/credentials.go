package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgentry/go-netrc/netrc"
	"golang.org/x/term"
)

// EarthdataMachine is the host authenticating every NASA Earthdata download
const EarthdataMachine = "urs.earthdata.nasa.gov"

// ErrNoCredentials is returned when no credential source is available
var ErrNoCredentials = errors.New("no credentials: use -username/-password, EARTHDATA_USERNAME/EARTHDATA_PASSWORD, a ~/.netrc entry or an interactive terminal")

// Credentials of one machine, stored in a netrc file readable only by the owner.
// The file is scoped to the run: Close deletes it.
type Credentials struct {
	Machine  string
	Username string
	password string
	file     string
}

// CredentialOptions lists the credential sources, tried in order:
// explicit username/password, the user netrc file, the interactive prompt.
type CredentialOptions struct {
	Machine   string
	Username  string
	Password  string
	UserNetrc string // usually ~/.netrc
	Prompt    bool

	// Interactive prompt (default os.Stdin/os.Stderr)
	In  *os.File
	Out io.Writer
}

// DefaultUserNetrc returns the path of the netrc file of the user
func DefaultUserNetrc() string {
	if p := os.Getenv("NETRC"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".netrc")
}

// SetupCredentials resolves the credentials and writes them into a scoped netrc file (mode 600)
func SetupCredentials(opts CredentialOptions) (*Credentials, error) {
	if opts.Machine == "" {
		opts.Machine = EarthdataMachine
	}
	c := &Credentials{Machine: opts.Machine, Username: opts.Username, password: opts.Password}

	if c.Username == "" || c.password == "" {
		if m, err := findMachine(opts.UserNetrc, opts.Machine); err != nil {
			return nil, fmt.Errorf("SetupCredentials.%w", err)
		} else if m != nil && (c.Username == "" || c.Username == m.Login) {
			c.Username, c.password = m.Login, m.Password
		}
	}
	if (c.Username == "" || c.password == "") && opts.Prompt {
		if err := c.prompt(opts); err != nil {
			return nil, fmt.Errorf("SetupCredentials.%w", err)
		}
	}
	if c.Username == "" || c.password == "" {
		return nil, ErrNoCredentials
	}

	f, err := os.CreateTemp("", "netrc-*")
	if err != nil {
		return nil, fmt.Errorf("SetupCredentials.CreateTemp: %w", err)
	}
	c.file = f.Name()
	if err := f.Chmod(0600); err != nil {
		f.Close()
		c.Close()
		return nil, fmt.Errorf("SetupCredentials.Chmod: %w", err)
	}
	if _, err := fmt.Fprintf(f, "machine %s login %s password %s\n", c.Machine, c.Username, c.password); err != nil {
		f.Close()
		c.Close()
		return nil, fmt.Errorf("SetupCredentials.Write: %w", err)
	}
	if err := f.Close(); err != nil {
		c.Close()
		return nil, fmt.Errorf("SetupCredentials.Close: %w", err)
	}
	return c, nil
}

func (c *Credentials) prompt(opts CredentialOptions) error {
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprintf(out, "Enter your Earthdata Login credentials (%s)\n", c.Machine)
	if c.Username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("prompt.Username: %w", err)
		}
		c.Username = strings.TrimSpace(line)
	}
	fmt.Fprint(out, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("prompt.Password: %w", err)
	}
	c.password = string(password)
	return nil
}

// File returns the path of the scoped netrc file
func (c *Credentials) File() string {
	return c.file
}

// Close deletes the scoped netrc file. It can be called several times.
func (c *Credentials) Close() error {
	if c == nil || c.file == "" {
		return nil
	}
	err := os.Remove(c.file)
	c.file = ""
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("Credentials.Close: %w", err)
	}
	return nil
}

// PersistTo merges the credentials into a durable netrc file (e.g. ~/.netrc).
// An existing entry for the machine is never modified. The file mode is forced to 600.
// Returns true if the file was modified.
func (c *Credentials) PersistTo(netrcFile string) (bool, error) {
	n, err := parseNetrc(netrcFile)
	if err != nil {
		return false, fmt.Errorf("PersistTo.%w", err)
	}
	if m := n.FindMachine(c.Machine); m != nil && !m.IsDefault() {
		return false, os.Chmod(netrcFile, 0600)
	}
	n.NewMachine(c.Machine, c.Username, c.password, "")
	text, err := n.MarshalText()
	if err != nil {
		return false, fmt.Errorf("PersistTo.Marshal: %w", err)
	}
	if err := os.WriteFile(netrcFile, text, 0600); err != nil {
		return false, fmt.Errorf("PersistTo.WriteFile: %w", err)
	}
	// WriteFile does not change the mode of an existing file
	if err := os.Chmod(netrcFile, 0600); err != nil {
		return true, fmt.Errorf("PersistTo.Chmod: %w", err)
	}
	return true, nil
}

// parseNetrc returns an empty netrc if the file does not exist
func parseNetrc(file string) (*netrc.Netrc, error) {
	n, err := netrc.ParseFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return netrc.Parse(strings.NewReader(""))
	}
	if err != nil {
		return nil, fmt.Errorf("parseNetrc[%s]: %w", file, err)
	}
	return n, nil
}

// findMachine returns nil if the file or the machine does not exist
func findMachine(file, machine string) (*netrc.Machine, error) {
	if file == "" {
		return nil, nil
	}
	n, err := parseNetrc(file)
	if err != nil {
		return nil, err
	}
	if m := n.FindMachine(machine); m != nil && !m.IsDefault() {
		return m, nil
	}
	return nil, nil
}
