package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kurir/core/model"
)

var (
	driverAvailable bool
	driverPhone     string
	driverPriority  int
)

var driverCmd = &cobra.Command{
	Use:   "driver",
	Short: "Driver related commands",
}

var driverLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List drivers",
	Args:  cobra.NoArgs,
	RunE:  runDriverLs,
}

var driverAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a driver",
	Args:  cobra.ExactArgs(1),
	RunE:  runDriverAdd,
}

var driverDutyCmd = &cobra.Command{
	Use:   "duty <driver-id> [on|off]",
	Short: "Toggle or set a driver's duty flag",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runDriverDuty,
}

func init() {
	driverLsCmd.Flags().BoolVar(&driverAvailable, "available", false, "only drivers able to take an order")
	driverAddCmd.Flags().StringVar(&driverPhone, "phone", "", "driver phone")
	driverAddCmd.Flags().IntVar(&driverPriority, "priority", 0, "priority level (0 = regular)")
	driverCmd.AddCommand(driverLsCmd, driverAddCmd, driverDutyCmd)
	rootCmd.AddCommand(driverCmd)
}

func runDriverLs(cmd *cobra.Command, args []string) error {
	d, closeFn, err := openDispatcher()
	if err != nil {
		return err
	}
	defer closeFn()
	list := d.Drivers
	if driverAvailable {
		list = d.AvailableDrivers
	}
	drivers, err := list(context.Background())
	if err != nil {
		return err
	}
	for _, drv := range drivers {
		printDriver(cmd.OutOrStdout(), drv)
	}
	return nil
}

func runDriverAdd(cmd *cobra.Command, args []string) error {
	d, closeFn, err := openDispatcher()
	if err != nil {
		return err
	}
	defer closeFn()
	drv, err := d.CreateDriver(context.Background(), model.Driver{
		Name:          args[0],
		Phone:         driverPhone,
		Active:        true,
		IsPriority:    driverPriority > 0,
		PriorityLevel: driverPriority,
	})
	if err != nil {
		return err
	}
	printDriver(cmd.OutOrStdout(), drv)
	return nil
}

func runDriverDuty(cmd *cobra.Command, args []string) error {
	d, closeFn, err := openDispatcher()
	if err != nil {
		return err
	}
	defer closeFn()
	ctx := context.Background()
	var drv model.Driver
	if len(args) == 1 {
		drv, err = d.ToggleDuty(ctx, args[0])
	} else {
		var on bool
		on, err = parseOnOff(args[1])
		if err != nil {
			return err
		}
		drv, err = d.SetDuty(ctx, args[0], on)
	}
	if err != nil {
		return err
	}
	printDriver(cmd.OutOrStdout(), drv)
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("duty must be on or off, got %q", s)
	}
	return b, nil
}

func printDriver(w io.Writer, drv model.Driver) {
	duty := "off"
	if drv.OnDuty {
		duty = "on"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\tduty=%s\tactive=%t\tpriority=%d\torders=%d\tcompleted=%d\n",
		drv.ID, drv.Name, drv.Phone, duty, drv.Active, drv.PriorityLevel, drv.CurrentOrderCount, drv.TotalCompleted)
}
