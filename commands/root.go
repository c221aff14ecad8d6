package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/achetronic/forwarder/api"
	"github.com/achetronic/forwarder/config"
	"github.com/achetronic/forwarder/dump"
	"github.com/achetronic/forwarder/listeners/tcp"
	"github.com/achetronic/forwarder/listeners/udp"
	"github.com/achetronic/forwarder/logger"
	"github.com/achetronic/forwarder/shutdown"
)

const (
	// Info messages
	StartingMessage    = "Starting proxy, forwarding %s connection: %s:%d <--> localhost:%d"
	WaitingMessage     = "Waiting for client connection(s), press Enter to terminate ..."
	TerminationMessage = "Termination requested, waiting for proxy ..."
	ExitingMessage     = "Exiting ..."

	// Error messages
	OpenDumpErrorMessage = "failed opening dump output %s"
	CloseDumpMessage     = "Error closing dump output"
)

type rootFlags struct {
	configFile string
	envFile    string
}

func NewRootCommand(log *logger.Logger) (*cobra.Command, error) {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		SilenceErrors: true,
		SilenceUsage:  true,
		Use:           "forwarder remoteHost remotePort localPort",
		Short:         "Forwards the TCP or UDP traffic of a local port to a remote host",
		Long: `Forwards the TCP or UDP traffic of a local port to a remote host.

Listens on localPort and relays every client connection to remoteHost:remotePort,
optionally recording a formatted hex/ASCII dump of the data forwarded.
Press Enter to terminate.

Supported optional environment variables:
  MODE ....... forward TCP (default) or UDP data
  DUMP ....... any value to record a formatted dump of the data forwarded
  DUMP_WIDTH . multiple of 16 defining the number of bytes per row of the dump`,
		Args: cobra.ArbitraryArgs,
		RunE: runForwarder(log, flags),
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	log.AddLevelFlag(rootCmd.PersistentFlags())
	rootCmd.Flags().StringVar(&flags.configFile, "config", "", "Path to an optional YAML manifest with the forwarder spec")
	rootCmd.Flags().StringVar(&flags.envFile, "env-file", "", "Path to an optional dotenv file. The process environment takes precedence")

	return rootCmd, nil
}

func runForwarder(log *logger.Logger, flags *rootFlags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 3 {
			return cmd.Help()
		}

		cfg, err := config.Load(config.Options{
			ConfigFile: flags.configFile,
			EnvFile:    flags.envFile,
			Environ:    os.Environ(),
			RemoteHost: args[0],
			RemotePort: args[1],
			LocalPort:  args[2],
		})
		if err != nil {
			return err
		}
		spec := &cfg.Spec

		dumpOut, closeDump, err := openDumpOutput(spec.Dump.Output, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := closeDump(); closeErr != nil {
				log.Error(closeErr, CloseDumpMessage)
			}
		}()

		// Every block published by the sessions is printed before the output is closed
		recorder := dump.NewRecorder(spec.Dump.Enabled, spec.Dump.Width, dumpOut, log.WithName("dump"))
		defer recorder.Close()

		log.Info(fmt.Sprintf(StartingMessage, spec.Listener.Protocol, spec.Backend.Host, spec.Backend.Port, spec.Listener.Port),
			"Dump", recorder.Enabled(), "DumpWidth", recorder.Width())

		group, ctx := errgroup.WithContext(cmd.Context())
		ctx, stop := context.WithCancel(ctx)
		defer stop()

		group.Go(func() error {
			defer stop()
			return launchProxy(ctx, spec, recorder, cmd.OutOrStdout(), log)
		})

		group.Go(func() error {
			err := shutdown.WatchInput(ctx, cmd.InOrStdin())
			if errors.Is(err, shutdown.ErrTerminationRequested) {
				log.Info(TerminationMessage)
				stop()
				return nil
			}
			return err
		})

		log.Info(WaitingMessage)
		err = group.Wait()

		log.Info(ExitingMessage)
		return err
	}
}

// launchProxy runs the acceptor of the configured protocol until the context is done
func launchProxy(ctx context.Context, spec *api.Forwarder, recorder *dump.Recorder, out io.Writer, log *logger.Logger) error {
	if spec.Listener.Protocol == api.ProtocolUDP {
		return udp.NewUDPProxy(spec, out, log.WithName("udp")).Launch(ctx)
	}
	return tcp.NewTCPProxy(spec, recorder, log.WithName("tcp")).Launch(ctx)
}

// openDumpOutput returns the writer of the dump blocks: the given file, appended to, or the fallback
func openDumpOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return fallback, func() error { return nil }, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, OpenDumpErrorMessage, path)
	}
	return file, file.Close, nil
}
