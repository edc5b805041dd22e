package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/config"
	"github.com/ctagard/jdwp-mcp/internal/mcp"
	"github.com/ctagard/jdwp-mcp/internal/version"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	mode := flag.String("mode", "", "Capability mode: 'readonly' or 'full'")
	logLevel := flag.String("log-level", "", "Log level: trace, debug, info, warn or error")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	// stdout carries the MCP stream, so logs go to stderr.
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Command line overrides
	switch *mode {
	case "readonly":
		cfg.Mode = config.ModeReadOnly
	case "full":
		cfg.Mode = config.ModeFull
	case "":
	default:
		logger.Fatalf("invalid mode %q: use 'readonly' or 'full'", *mode)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.Level())

	log := logrus.NewEntry(logger)
	server := mcp.NewServer(cfg, log)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("shutting down")
		server.Close()
		os.Exit(0)
	}()

	log.WithFields(logrus.Fields{
		"version": version.Version,
		"mode":    cfg.Mode,
	}).Info("jdwp-mcp server starting")
	if err := server.ServeStdio(); err != nil {
		server.Close()
		log.WithError(err).Fatal("server error")
	}
	server.Close()
}

func printHelp() {
	fmt.Println(`JDWP-MCP: Java Debug Wire Protocol MCP Server

A Model Context Protocol (MCP) server that debugs JVM programs over JDWP,
enabling AI agents to launch, inspect and control Java, Kotlin and Scala code.

USAGE:
    jdwp-mcp [OPTIONS]

OPTIONS:
    -config <path>       Path to configuration file (JSON)
    -mode <mode>         Capability mode: 'readonly' or 'full' (default: full)
    -log-level <level>   Log level: trace, debug, info, warn or error
    -version             Show version and exit
    -help                Show this help message

CONFIGURATION:
    Create a JSON configuration file to customize behavior:

    {
        "mode": "full",
        "allowLaunch": true,
        "allowAttach": true,
        "allowModify": true,
        "allowExecute": true,
        "maxSessions": 10,
        "sessionTimeout": "30m",
        "logLevel": "info",
        "java": {
            "path": "/usr/lib/jvm/java-21/bin/java",
            "extraArgs": ["-Xss4m"]
        },
        "jdwp": {
            "dialTimeout": "10s",
            "replyTimeout": "30s",
            "eventQueueSize": 256
        }
    }

ATTACHING:
    Start the target with the JDWP agent listening, then use jdwp_attach:

    java -agentlib:jdwp=transport=dt_socket,server=y,suspend=n,address=5005 -cp app.jar com.example.Main

MCP INTEGRATION:
    Add to your MCP client configuration:

    {
        "mcpServers": {
            "jdwp-mcp": {
                "command": "jdwp-mcp",
                "args": ["--mode", "full"]
            }
        }
    }

TOOLS:
    Session Management:
        jdwp_launch           Start a JVM under the debugger
        jdwp_attach           Attach to a listening JVM
        jdwp_disconnect       End a debug session
        jdwp_list_sessions    List active sessions

    Inspection (read-only):
        jdwp_snapshot         Threads, stack and locals in one call
        jdwp_threads          List threads
        jdwp_stack            Get a thread's call stack
        jdwp_variables        Get a frame's variables
        jdwp_classes          List loaded classes
        jdwp_wait_event       Wait for the next stop
        jdwp_output           Read the launched program's output
        jdwp_breakpoints      List breakpoints

    Control (full mode only):
        jdwp_breakpoint            Set or remove a line breakpoint
        jdwp_exception_breakpoint  Stop on thrown exceptions
        jdwp_step                  Step into, over or out
        jdwp_resume                Resume execution
        jdwp_suspend               Suspend execution
        jdwp_set_variable          Modify a local variable
        jdwp_run_to_line           Run to a specific line

For more information, visit: https://github.com/ctagard/jdwp-mcp`)
}
