package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/plant-waterer/internal/hardware"
	"github.com/sweeney/plant-waterer/internal/logic"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watering daemon (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDaemon()
		},
	}
}

func newReadSensorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-sensors",
		Short: "Read the moisture probe and water level once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := hardware.NewRealGateway(pinsFromConfig(a.cfg), adcFromConfig(a.cfg))
			if err != nil {
				return fmt.Errorf("init hardware: %w", err)
			}
			defer gw.Close()
			return printReading(cmd.OutOrStdout(), gw)
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// sensorReader is the read side of hardware.Gateway.
type sensorReader interface {
	ReadMoisture() (int, error)
	ReadWaterLevel() (logic.WaterLevel, error)
}

func printReading(w io.Writer, gw sensorReader) error {
	raw, err := gw.ReadMoisture()
	if err != nil {
		return err
	}
	level, err := gw.ReadWaterLevel()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Moisture: %d%% (raw %d), Water level: %s\n", logic.MoisturePercent(raw), raw, level)
	return nil
}
