package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	cartErrors "github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/synckit"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The cart operation failed
	ExitCommandError = 2 // Bad arguments, config or local storage
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// resultJSON is the json rendering of an engine Result.
type resultJSON struct {
	Operation string     `json:"operation"`
	OK        bool       `json:"ok"`
	Error     string     `json:"error,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	Recovery  string     `json:"recovery,omitempty"`
	Count     int        `json:"count"`
	Cart      cart.State `json:"cart"`
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// NewOutputFormatter creates a formatter for format writing to w.
func NewOutputFormatter(format string, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: format, Writer: w}
}

// Result prints res and returns an ExitError when it failed.
func (f *OutputFormatter) Result(res synckit.Result) error {
	if f.Format == "json" {
		out := resultJSON{
			Operation: string(res.Op),
			OK:        res.OK(),
			Recovery:  string(res.Recovery),
			Count:     res.State.Count(),
			Cart:      res.State,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
			out.Kind = string(cartErrors.KindOf(res.Err))
		}
		if err := f.JSON(out); err != nil {
			return err
		}
	} else {
		if res.Err != nil {
			fmt.Fprintf(f.Writer, "%s failed: %v\n", res.Op, res.Err)
			if res.Recovery != synckit.RecoveryNone {
				fmt.Fprintf(f.Writer, "local cart %s\n", res.Recovery)
			}
		}
		f.Cart(res.State)
	}
	if res.Err != nil {
		return WrapExitError(ExitFailure, string(res.Op)+" failed", res.Err)
	}
	return nil
}

// Cart prints the cart as a table.
func (f *OutputFormatter) Cart(s cart.State) {
	if s.Len() == 0 {
		fmt.Fprintln(f.Writer, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BUNDLE\tLINE\tTITLE\tQTY\tPRICE\tSUBTOTAL")
	for _, it := range s.Items {
		line := "-"
		if it.ServerItemID.Known() {
			line = fmt.Sprint(int64(it.ServerItemID))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", it.ID, line, it.Title, it.Quantity, it.Price, it.Subtotal())
	}
	_ = tw.Flush()
	fmt.Fprintf(f.Writer, "%d item(s), total %s\n", s.Count(), s.Total)
}

// JSON writes v as indented JSON.
func (f *OutputFormatter) JSON(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Message prints a plain line, or {"message": ...} in json format.
func (f *OutputFormatter) Message(key, value string) error {
	if f.Format == "json" {
		return f.JSON(map[string]string{key: value})
	}
	_, err := fmt.Fprintln(f.Writer, value)
	return err
}
