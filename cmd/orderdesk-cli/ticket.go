package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"orderdesk/internal/analysis"
	"orderdesk/internal/domain"
	"orderdesk/internal/orderform"
)

// ticketFlags are the order fields accepted on the command line.
type ticketFlags struct {
	symbol     string
	side       string
	qty        string
	orderType  string
	limit      string
	option     string
	strike     string
	expiration string
}

func (tf *ticketFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&tf.symbol, "symbol", "s", "", "ticker symbol")
	fs.StringVar(&tf.side, "side", "buy", "buy or sell")
	fs.StringVarP(&tf.qty, "qty", "q", "1", "shares or contracts")
	fs.StringVar(&tf.orderType, "type", "market", "market or limit")
	fs.StringVar(&tf.limit, "limit", "", "limit price (implies --type limit)")
	fs.StringVar(&tf.option, "option", "", "call or put; trades an option instead of stock")
	fs.StringVar(&tf.strike, "strike", "", "strike price (default: middle of the chain)")
	fs.StringVar(&tf.expiration, "expiration", "", "expiration date (default: nearest)")
}

// fill enters the flags into f the way a user would: asset class first so
// the option chain resolves for the symbol, then the selections.
func (tf *ticketFlags) fill(f *orderform.Form) error {
	if tf.option != "" {
		f.SetAssetClass(domain.AssetClassOption)
		f.SetOptionType(domain.OptionType(strings.ToLower(tf.option)))
	}
	f.SetSymbol(tf.symbol)
	f.SetSide(domain.Side(strings.ToLower(tf.side)))
	f.SetQuantity(tf.qty)

	orderType := domain.OrderType(strings.ToLower(tf.orderType))
	if tf.limit != "" {
		orderType = domain.OrderTypeLimit
	}
	f.SetOrderType(orderType)
	f.SetLimitPrice(tf.limit)
	f.Wait()

	if tf.option == "" {
		return nil
	}
	if tf.expiration != "" {
		if err := f.SelectExpiration(tf.expiration); err != nil {
			return err
		}
		f.Wait()
	}
	if tf.strike != "" {
		strike, err := strconv.ParseFloat(tf.strike, 64)
		if err != nil {
			return fmt.Errorf("invalid strike %q", tf.strike)
		}
		if err := f.SelectStrike(strike); err != nil {
			return err
		}
	}
	return nil
}

func submitCmd(a *app) *cobra.Command {
	var (
		tf            ticketFlags
		yes           bool
		testDuplicate bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Build, confirm and submit one order",
		Example: "  orderdesk-cli submit -s SPY -q 10\n" +
			"  orderdesk-cli submit -s TSLA --option call --side sell -q 2 --limit 3.5",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTicket(cmd.Context(), a, tf.fill, yes, testDuplicate)
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&testDuplicate, "test-duplicate", false, "replay the same correlation ID after submitting")
	return cmd
}

// runTicket mounts a form, fills it, shows the confirmation and submits on
// approval.
func runTicket(ctx context.Context, a *app, fill func(*orderform.Form) error, yes, testDuplicate bool) error {
	history, err := a.history()
	if err != nil {
		return err
	}
	defer history.Close()

	f := orderform.New(a.client, history, a.cfg.Ticket.AnalysisDebounce, a.log)
	defer f.Close()

	if err := fill(f); err != nil {
		return err
	}
	f.Wait()
	printAnalysis(f.Analysis())

	msg, err := f.Submit()
	if err != nil {
		return err
	}
	fmt.Println(promptStyle.Render(" " + msg + " "))

	if !yes {
		ok, err := confirm(os.Stdin)
		if err != nil {
			return err
		}
		if !ok {
			f.Cancel()
			fmt.Println(dimStyle.Render("cancelled, nothing was sent"))
			return nil
		}
	}

	sctx, cancel := context.WithTimeout(ctx, a.cfg.Ticket.SubmitTimeout)
	defer cancel()

	out, err := f.Confirm(sctx)
	if err != nil {
		return err
	}
	printOutcome(out)

	if testDuplicate {
		dup, err := f.TestDuplicate(sctx)
		if err != nil {
			return err
		}
		printOutcome(dup)
	}
	return nil
}

func confirm(r io.Reader) (bool, error) {
	fmt.Print("Confirm? [y/N] ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printAnalysis(st analysis.Status) {
	switch st.State {
	case analysis.Ready:
		fields := st.Snapshot.Data.GetFields()
		fmt.Printf("%s %s  signal=%s confidence=%.2f\n",
			dimStyle.Render("analysis"),
			symbolStyle.Render(st.Symbol),
			fields["signal"].GetStringValue(),
			fields["confidence"].GetNumberValue(),
		)
	case analysis.Failed:
		fmt.Println(warnStyle.Render("analysis unavailable: ") + st.Err.Error())
	}
}
