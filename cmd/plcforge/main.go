// plcforge reads, translates and writes ladder-logic controller projects.
//
// Usage:
//
//	plcforge [-config file] [-v] <command> [arguments]
//
// Commands:
//
//	parse <file> [-hint d] [-o model.json|.yaml|.msgpack]
//	generate -target d (-from-json f | -from-plcopen f) [-o out] [-force] [-strict]
//	convert <file> -target d [-hint d] [-o out] [-force] [-strict]
//	validate <file> [-hint d] [-force] [-strict]
//	inject <template.project> -additions f [-o out] [-force] [-strict]
//	serve [-port n]
//	version
//
// Exit status is 0 on success, 2 for validation errors, 3 for parse errors,
// 4 for unsupported features and 5 when a resource limit is exceeded.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/plc-visualizer/plcforge/internal/config"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/logs"
	"github.com/plc-visualizer/plcforge/internal/pipeline"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configName = "plcforge.config"

// errUsage marks command-line mistakes; the usage text has been printed.
var errUsage = errors.New("usage")

type app struct {
	cfg        *config.AppConfig
	configPath string
	log        *slog.Logger
	engine     *pipeline.Engine
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("plcforge", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { printUsage(stderr) }
	configPath := global.String("config", defaultConfigPath(), "configuration file")
	verbose := global.Bool("v", false, "debug logging")
	if err := global.Parse(args); err != nil {
		return 1
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "version", "--version":
		fmt.Fprintf(stdout, "plcforge %s (built %s)\n", Version, BuildTime)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	log, closer, err := logs.New(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open log: %v\n", err)
		return 1
	}
	defer closer.Close()

	a := &app{
		cfg:        cfg,
		configPath: *configPath,
		log:        log,
		engine:     pipeline.New(cfg.CodecOptions()),
		stdout:     stdout,
		stderr:     stderr,
	}

	var cmdErr error
	switch cmd {
	case "parse":
		cmdErr = a.cmdParse(cmdArgs)
	case "generate":
		cmdErr = a.cmdGenerate(cmdArgs)
	case "convert":
		cmdErr = a.cmdConvert(cmdArgs)
	case "validate":
		cmdErr = a.cmdValidate(cmdArgs)
	case "inject":
		cmdErr = a.cmdInject(cmdArgs)
	case "serve":
		cmdErr = a.cmdServe(cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printUsage(stderr)
		return 1
	}

	if cmdErr == nil {
		return 0
	}
	if errors.Is(cmdErr, errUsage) {
		return 1
	}
	fmt.Fprintf(stderr, "error: %v\n", cmdErr)
	return faults.ExitCode(cmdErr)
}

func defaultConfigPath() string {
	if p := os.Getenv("PLCFORGE_CONFIG"); p != "" {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return configName
	}
	return filepath.Join(filepath.Dir(exe), configName)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `plcforge - ladder-logic project converter

Usage:
  plcforge [-config file] [-v] <command> [arguments]

Commands:
  parse <file>       Print a project summary; -o dumps the model
  generate           Emit a project from a model (-from-json) or PLCopen file (-from-plcopen)
  convert <file>     Translate a project to another dialect (-target)
  validate <file>    Check a project and print the report
  inject <template>  Add POUs from -additions to a CODESYS template
  serve              Run the HTTP API
  version            Print version information

Dialects:
  Schneider-M221 (m221), Schneider-M241 (m241), Rockwell-Logix (rockwell),
  Siemens-S7 (s7), Mitsubishi-FX (fx), Codesys-Generic (codesys),
  PLCopen-Neutral (plcopen)`)
}
