package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilserrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/component-base/version"
	"k8s.io/component-base/version/verflag"
	"k8s.io/klog/v2"
	"plcgateway/cmd/gateway/config"
	"plcgateway/cmd/gateway/options"
	"plcgateway/pkg/gateway"
	"plcgateway/pkg/generic"
	baseoptions "plcgateway/pkg/generic/options"
	"plcgateway/pkg/web"
)

const (
	ComponentGateway = "plc-gateway"
)

func NewGatewayCmd() *cobra.Command {
	cleanFlagSet := pflag.NewFlagSet(ComponentGateway, pflag.ContinueOnError)
	o := options.NewDefaultOptions()
	cmd := &cobra.Command{
		Use:                ComponentGateway,
		Long:               `The plc gateway exposes the registers, coils, inputs and outputs of a Delta DVP PLC over a serial Modbus link as an HTTP JSON API.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// initial flag parse, since we disable cobra's flag parsing
			if err := cleanFlagSet.Parse(args); err != nil {
				klog.ErrorS(err, "Failed to parse flag")
				_ = cmd.Usage()
				os.Exit(1)
			}

			// check if there are non-flag arguments in the command line
			cmds := cleanFlagSet.Args()
			if len(cmds) > 0 {
				klog.ErrorS(nil, "Unknown command", "command", cmds[0])
				_ = cmd.Usage()
				os.Exit(1)
			}

			// short-circuit on help
			baseoptions.PrintHelpAndExitIfRequested(cmd, cleanFlagSet)

			// short-circuit on defaultconfig
			baseoptions.PrintDefaultConfigAndExitIfRequested(options.NewDefaultOptions(), cleanFlagSet)

			// short-circuit on verflag
			verflag.PrintAndExitIfRequested()

			if err := baseoptions.ParseAndApplyConfigFile(o, args); err != nil {
				return err
			}

			if errs := options.Validate(o); len(errs) != 0 {
				return utilserrors.NewAggregate(errs)
			}

			// To help debugging, immediately log version
			klog.Infof("Version: %+v", version.Get())
			return run(o)
		},
	}

	verflag.AddFlags(cleanFlagSet)
	o.AddFlags(cleanFlagSet)
	o.AddBaseFlags(cmd, cleanFlagSet)

	return cmd
}

func run(o *options.Options) error {
	stopCh := make(chan struct{})

	c, err := o.Config(stopCh)
	if err != nil {
		return err
	}

	// 串口打不开不影响启动, 首次请求时会重试
	if err := c.Device.Connect(); err != nil {
		ports, _ := gateway.SerialPorts()
		klog.ErrorS(err, "Failed to connect to plc, will retry on demand", "port", o.Serial.Address, "available", ports)
	} else {
		klog.V(1).InfoS("Connected to plc", "port", o.Serial.Address, "framing", o.Serial.Framing)
	}

	server, err := web.NewServer(generic.Default(o.AllowOrigins), o, c)
	if err != nil {
		return err
	}

	exit, err := server.Serve()
	if err != nil {
		_ = c.Device.Disconnect()
		return err
	}
	klog.V(1).InfoS("Server started", "port", o.Port)
	printBanner(o, c)

	// Graceful shutdown
	// Wait for interrupt signal to gracefully shutdown the server
	exitCh := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be catch, so don't need add it
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exitCh
	klog.V(1).InfoS("Shutting down", "signal", sig.String())
	ctx, cancel := context.WithTimeout(context.Background(), o.Wait.Duration)
	defer cancel()

	exit(ctx)
	close(stopCh)

	return nil
}

func printBanner(o *options.Options, c *config.Config) {
	scheme := "http"
	if len(c.CertFile) > 0 {
		scheme = "https"
	}
	addresses, err := gateway.NetworkAddresses()
	if err != nil {
		klog.V(2).InfoS("Failed to list network addresses", "err", err)
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("PLC gateway %s started at %s\n", version.Get().GitVersion, time.Now().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("  Local:     %s://localhost:%s\n", scheme, o.Port))
	for _, address := range addresses {
		b.WriteString(fmt.Sprintf("  Network:   %s://%s:%s\n", scheme, address, o.Port))
	}
	b.WriteString(fmt.Sprintf("  Dashboard: %s://localhost:%s/\n", scheme, o.Port))
	b.WriteString(fmt.Sprintf("  Health:    %s://localhost:%s/health\n", scheme, o.Port))
	b.WriteString(fmt.Sprintf("  Status:    %s://localhost:%s/api/status\n", scheme, o.Port))
	b.WriteString(fmt.Sprintf("  PLC:       %s (%s, slave %d)\n", o.Serial.Address, o.Serial.Framing, o.Serial.Slave))
	if c.Publisher != nil {
		b.WriteString(fmt.Sprintf("  MQTT:      %s %s\n", o.MQTT.Broker, c.Publisher.Topic()))
	}
	if len(o.Logging.File) > 0 {
		b.WriteString(fmt.Sprintf("  Log file:  %s\n", o.Logging.File))
	}
	b.WriteString(strings.Repeat("=", 60))
	fmt.Println(b.String())
}
