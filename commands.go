package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tournevent/dhlparcel/internal/render"
	"github.com/tournevent/dhlparcel/internal/shipmentinput"
	"github.com/tournevent/dhlparcel/internal/telemetry"
	"github.com/tournevent/dhlparcel/pkg/dhl"
)

var (
	shipmentCmd = &cobra.Command{
		Use:   "shipment",
		Short: "Create or cancel shipments",
	}

	shipmentCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a shipment from a YAML or JSON document",
		Args:  cobra.NoArgs,
		RunE:  runShipmentCreate,
	}

	shipmentCancelCmd = &cobra.Command{
		Use:   "cancel SHIPMENT_ID",
		Short: "Cancel a shipment",
		Args:  cobra.ExactArgs(1),
		RunE:  runShipmentCancel,
	}

	labelCmd = &cobra.Command{
		Use:   "label",
		Short: "Retrieve shipping labels",
	}

	labelGetCmd = &cobra.Command{
		Use:   "get SHIPMENT_ID",
		Short: "Download a label and write it to disk",
		Args:  cobra.ExactArgs(1),
		RunE:  runLabelGet,
	}

	trackCmd = &cobra.Command{
		Use:   "track TRACKING_NUMBER",
		Short: "Show the carrier tracking payload",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrack,
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Obtain an access token and check the credentials",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
)

func init() {
	shipmentCreateCmd.Flags().StringP("file", "f", "", "shipment document (YAML or JSON)")
	shipmentCreateCmd.Flags().String("format", dhl.DefaultFormat, "label format: PDF, PNG or ZPL")
	_ = shipmentCreateCmd.MarkFlagRequired("file")

	labelGetCmd.Flags().String("format", dhl.DefaultFormat, "label format: PDF, PNG or ZPL")
	labelGetCmd.Flags().StringP("output", "o", ".", "directory to write the label into")

	tokenCmd.Flags().Bool("refresh", false, "discard any cached token and authenticate again")

	shipmentCmd.AddCommand(shipmentCreateCmd, shipmentCancelCmd)
	labelCmd.AddCommand(labelGetCmd)
	rootCmd.AddCommand(shipmentCmd, labelCmd, trackCmd, tokenCmd)
}

// withApp wires the DHL services for a one-shot command and reports errors in
// the terminal style.
func withApp(cmd *cobra.Command, fn func(app *dhlApp, pickupAccount string) error) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return printErr(cmd, err)
	}

	logger, err := telemetry.NewCLILogger("warn")
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := initDHL(ctx, cfg, logger, nil, nil)
	if err != nil {
		return printErr(cmd, err)
	}
	defer app.Close()

	return printErr(cmd, fn(app, cfg.DHLPickupAccount))
}

func printErr(cmd *cobra.Command, err error) error {
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), render.Error(err))
	}
	return err
}

func runShipmentCreate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	format, _ := cmd.Flags().GetString("format")

	return withApp(cmd, func(app *dhlApp, pickupAccount string) error {
		doc, err := shipmentinput.LoadFile(path)
		if err != nil {
			return err
		}
		req, err := doc.ToRequest(pickupAccount)
		if err != nil {
			return err
		}

		resp, err := app.Client.CreateShipment(cmd.Context(), req, format)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Shipment(resp))
		return nil
	})
}

func runShipmentCancel(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(app *dhlApp, _ string) error {
		if err := app.Client.CancelShipment(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Cancelled(args[0]))
		return nil
	})
}

func runLabelGet(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	shipmentID := args[0]

	return withApp(cmd, func(app *dhlApp, _ string) error {
		content, err := app.Client.GetLabelContent(cmd.Context(), shipmentID, format)
		if err != nil {
			return err
		}

		filename := fmt.Sprintf("%s.%s", shipmentID, strings.ToLower(format))
		path, err := app.Labels.SaveDecoded(cmd.Context(), content, filename, output)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.LabelSaved(shipmentID, path, dhl.ContentTypeForFormat(format), int64(len(content))))
		return nil
	})
}

func runTrack(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(app *dhlApp, _ string) error {
		resp, err := app.Client.TrackShipment(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Tracking(resp))
		return nil
	})
}

func runToken(cmd *cobra.Command, args []string) error {
	refresh, _ := cmd.Flags().GetBool("refresh")

	return withApp(cmd, func(app *dhlApp, _ string) error {
		var token string
		var err error
		if refresh {
			token, err = app.Auth.RefreshAccessToken(cmd.Context())
		} else {
			token, err = app.Auth.GetAccessToken(cmd.Context())
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Token(token, refresh, app.Auth.IsSandbox()))
		return nil
	})
}
