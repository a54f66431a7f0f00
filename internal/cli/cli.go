package cli

import (
	"errors"
	"fmt"
	"strings"
)

// Command is one top-level livescribe subcommand.
type Command string

const (
	CommandToggle    Command = "toggle"
	CommandStop      Command = "stop"
	CommandStatus    Command = "status"
	CommandAuthorize Command = "authorize"
	CommandDevices   Command = "devices"
	CommandDoctor    Command = "doctor"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandToggle:    {},
	CommandStop:      {},
	CommandStatus:    {},
	CommandAuthorize: {},
	CommandDevices:   {},
	CommandDoctor:    {},
	CommandVersion:   {},
	CommandHelp:      {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

// Parse reads `[--config PATH] <command>`; no arguments means help.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  toggle      Start a live transcription session or stop the active one
  stop        Stop the active session and print its final transcript
  status      Print current session state and latest text
  authorize   Request speech recognition authorization and print the status
  devices     List available input devices
  doctor      Run authorization and readiness checks
  version     Print version information
  help        Show this help

Partial transcripts stream to stderr; the final transcript prints to stdout.

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/livescribe/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
