package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

var (
	orderStatus  string
	orderDriver  string
	orderLimit   int
	orderName    string
	orderService string
	orderReason  string
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Order related commands",
}

var orderLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List orders, newest first",
	Args:  cobra.NoArgs,
	RunE:  runOrderLs,
}

var orderCreateCmd = &cobra.Command{
	Use:   "create <phone>",
	Short: "Create an order and auto-assign it",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrderCreate,
}

var orderStatusCmd = &cobra.Command{
	Use:   "status <order-id> <status>",
	Short: "Move an order to a new status",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrderStatus,
}

func init() {
	orderLsCmd.Flags().StringVar(&orderStatus, "status", "", "filter by status")
	orderLsCmd.Flags().StringVar(&orderDriver, "driver", "", "filter by driver id")
	orderLsCmd.Flags().IntVar(&orderLimit, "limit", 20, "maximum number of orders")
	orderCreateCmd.Flags().StringVar(&orderName, "name", "", "customer name")
	orderCreateCmd.Flags().StringVar(&orderService, "service", string(model.ServiceFood), "service type (food|ride)")
	orderStatusCmd.Flags().StringVar(&orderReason, "reason", "", "cancel reason")
	orderCmd.AddCommand(orderLsCmd, orderCreateCmd, orderStatusCmd)
	rootCmd.AddCommand(orderCmd)
}

func runOrderLs(cmd *cobra.Command, args []string) error {
	d, closeFn, err := openDispatcher()
	if err != nil {
		return err
	}
	defer closeFn()
	orders, err := d.Orders(context.Background(), model.OrderFilter{
		Status:   model.OrderStatus(orderStatus),
		DriverID: orderDriver,
		Limit:    orderLimit,
	})
	if err != nil {
		return err
	}
	for _, o := range orders {
		printOrder(cmd.OutOrStdout(), o)
	}
	return nil
}

func runOrderCreate(cmd *cobra.Command, args []string) error {
	d, closeFn, err := openDispatcher()
	if err != nil {
		return err
	}
	defer closeFn()
	o, err := d.CreateOrder(context.Background(), dispatch.OrderRequest{
		Phone:       args[0],
		Name:        orderName,
		ServiceType: model.ServiceType(orderService),
	})
	if err != nil {
		return err
	}
	printOrder(cmd.OutOrStdout(), o)
	return nil
}

func runOrderStatus(cmd *cobra.Command, args []string) error {
	d, closeFn, err := openDispatcher()
	if err != nil {
		return err
	}
	defer closeFn()
	o, err := d.UpdateStatus(context.Background(), args[0], model.OrderStatus(args[1]), orderReason)
	if err != nil {
		return err
	}
	printOrder(cmd.OutOrStdout(), o)
	return nil
}

func printOrder(w io.Writer, o model.Order) {
	driver := o.DriverID
	if driver == "" {
		driver = "-"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%-11s\t%s\t%s\t%s\n",
		o.ID, o.OrderNumber, o.Status, o.ServiceType, o.CustomerPhone, driver)
}
