// Package sh provides the interactive shell of probecli.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/probe.go/pkg/env"
	"github.com/robotalks/probe.go/pkg/probe"
	"github.com/robotalks/probe.go/pkg/transport"
)

// DefaultCommandTimeout bounds a single command round trip.
const DefaultCommandTimeout = 3 * time.Second

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive    bool
	OutputJSON     bool
	AutoConnect    bool
	CommandTimeout time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Conn
}

// Conn is an established connection to a probe.
type Conn struct {
	URL    string
	Link   *probe.StreamLink
	Client *probe.Client
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive:    !evalOnly,
		OutputJSON:     outputJSON,
		CommandTimeout: DefaultCommandTimeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// DoCommand runs fn against the connected probe and prints the result.
// text renders the result for humans, nil prints OK.
func DoCommand(c *ishell.Context, fn CommandFunc, text func(interface{}) string) error {
	return DoCommandWithin(c, 0, fn, text)
}

// CommandFunc performs a command with the client.
type CommandFunc func(context.Context, *probe.Client) (interface{}, error)

// DoCommandWithin is DoCommand with extra time on top of CommandTimeout.
func DoCommandWithin(c *ishell.Context, extra time.Duration, fn CommandFunc, text func(interface{}) string) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.CommandTimeout+extra)
	defer cancel()
	res, err := fn(ctx, s.Conn.Client)
	if err != nil {
		c.Err(err)
		return err
	}
	return s.Print(c, res, text)
}

// Print prints a result as JSON or text.
func (s *Shell) Print(c *ishell.Context, res interface{}, text func(interface{}) string) error {
	if s.OutputJSON {
		if res == nil {
			res = map[string]bool{"ok": true}
		}
		out, err := json.Marshal(res)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	if text == nil {
		c.Println("OK")
		return nil
	}
	c.Println(text(res))
	return nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens the link at url and waits for the probe welcome.
func (s *Shell) Connect(url string) error {
	rw, err := transport.Dial(url)
	if err != nil {
		return err
	}
	conn, err := Handshake(s.Config, rw)
	if err != nil {
		rw.Close()
		return fmt.Errorf("connect %s: %w", url, err)
	}
	conn.URL = url
	s.Disconnect()
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Handshake sets up a Client over rw and waits for the probe welcome.
func Handshake(conf *env.Config, rw io.ReadWriteCloser) (*Conn, error) {
	link := conf.NewStreamLink(rw)
	client := probe.NewClient(link)
	timeout := conf.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Handshake(ctx); err != nil {
		link.End()
		return nil, err
	}
	return &Conn{Link: link, Client: client}, nil
}

// Disconnect disconnects current probe.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Link.End()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()
	if s.AutoConnect && s.Config.LinkURL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.LinkURL)
		}
		if err := s.Connect(s.Config.LinkURL); err != nil {
			if !s.Interactive || len(args) > 0 {
				log.Fatalln(err)
			}
			s.Shell.Println(err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects a probe.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			url := s.Config.LinkURL
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current probe.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.MustLoad()).WithAutoConnect(true).Run(flag.Args()...)
}
