package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/and161185/bookbazaar/internal/errs"
	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/validate"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
)

// commands builds the command tree for one shell line.
func (a *app) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookbazaar",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.registerCmd(),
		a.whoamiCmd(),
		a.booksCmd(),
		a.bookCmd(),
		a.buyCmd(),
		a.cartCmd(),
		a.favsCmd(),
		a.favCmd(),
		a.borrowedCmd(),
		a.borrowCmd(),
		a.returnCmd(),
		a.ordersCmd(),
		a.usersCmd(),
		a.metricsCmd(),
		&cobra.Command{Use: "exit", Short: "Leave the shell", Run: func(*cobra.Command, []string) {}},
	)
	return root
}

// ---- session ----

func (a *app) loginCmd() *cobra.Command {
	var user, pass string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if user == "" {
				if user, err = a.prompt("username: "); err != nil {
					return err
				}
			}
			if pass == "" {
				if pass, err = a.secret("password: "); err != nil {
					return err
				}
			}
			s, err := a.svc.Auth.Login(cmd.Context(), validate.Login{Username: user, Password: pass})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (user %d, %s)\n", user, deref(s.UserID), roleName(s.Role))
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "username")
	cmd.Flags().StringVarP(&pass, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.svc.Auth.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

// registrationFlags binds the sign-up form; the password is prompted when empty.
func (a *app) registrationFlags(cmd *cobra.Command, form *validate.Registration) func() error {
	fl := cmd.Flags()
	fl.StringVar(&form.Name, "name", "", "first name")
	fl.StringVar(&form.Lastname, "lastname", "", "last name")
	fl.StringVar(&form.Username, "username", "", "username (5-20 characters)")
	fl.StringVar(&form.Email, "email", "", "email")
	fl.StringVar(&form.Password, "password", "", "password (prompted when omitted)")
	return func() error {
		if form.Password != "" {
			return nil
		}
		p, err := a.secret("password: ")
		form.Password = p
		return err
	}
}

func (a *app) registerCmd() *cobra.Command {
	var form validate.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
	}
	askPassword := a.registrationFlags(cmd, &form)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := askPassword(); err != nil {
			return err
		}
		u, err := a.svc.Auth.Register(cmd.Context(), form)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s (user %d); you can log in now\n", u.Username, u.ID)
		return nil
	}
	return cmd
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			me, err := a.svc.Users.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s), %s, balance %.2f\n",
				me.Name, me.Lastname, me.Username, roleName(me.Role), me.Balance)
			return nil
		},
	}
}

// ---- catalog ----

func (a *app) booksCmd() *cobra.Command {
	var (
		genre, term string
		refresh     bool
	)
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refresh {
				if _, err := a.svc.Books.Refresh(cmd.Context()); err != nil {
					return err
				}
			}
			books, err := a.svc.Books.Search(cmd.Context(), genre, term)
			if err != nil {
				return err
			}
			a.printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}
	cmd.Flags().StringVar(&genre, "genre", "", "only this genre")
	cmd.Flags().StringVar(&term, "search", "", "genre is, or name, author or description contains")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload from the server")
	return cmd
}

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog (admin)",
	}

	var form validate.NewBook
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.svc.Books.Add(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added book %d %q\n", b.ID, b.Name)
			return nil
		},
	}
	fl := add.Flags()
	fl.StringVar(&form.Author, "author", "", "author")
	fl.StringVar(&form.Name, "name", "", "title")
	fl.StringVar(&form.Genre, "genre", "", "genre")
	fl.Float64Var(&form.Price, "price", 0, "price")
	fl.IntVar(&form.Quantity, "quantity", 0, "copies in stock")
	fl.Float64Var(&form.BorrowPrice, "borrow-price", 0, "borrow price")
	fl.StringVar(&form.Description, "description", "", "short description")
	fl.StringVar(&form.DescriptionLong, "long", "", "long description")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Books.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted book %d\n", id)
			return nil
		},
	}
	cmd.AddCommand(add, rm)
	return cmd
}

func (a *app) buyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy <id>",
		Short: "Buy one copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Books.Buy(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bought book %d\n", id)
			return nil
		},
	}
}

// ---- cart ----

func (a *app) cartCmd() *cobra.Command {
	var (
		genre, term string
		refresh     bool
	)
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := a.svc.Cart.List
			if refresh {
				list = a.svc.Cart.Refresh
			}
			lines, err := list(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(lines) == 0 {
				fmt.Fprintln(out, "cart is empty")
				return nil
			}
			if genre != "" || term != "" {
				if lines = a.svc.Cart.Store().Filter(genre, term); len(lines) == 0 {
					fmt.Fprintln(out, "no matching lines")
					return nil
				}
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL\tRESERVED UNTIL")
			for _, l := range lines {
				until := "-"
				if t := l.Book.ReservationExpiresAt; !t.IsZero() {
					until = t.Local().Format("15:04:05")
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\t%.2f\t%s\n", l.Book.ID, l.Book.Name, l.Quantity, l.Book.Price, l.Subtotal(), until)
			}
			_ = tw.Flush()
			fmt.Fprintf(out, "total %.2f\n", a.svc.Cart.Store().Total())
			return nil
		},
	}
	cmd.Flags().StringVar(&genre, "genre", "", "only this genre")
	cmd.Flags().StringVar(&term, "search", "", "genre is, or name, author or description contains")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload from the server")

	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Reserve one more copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.findBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Cart.Add(cmd.Context(), b); err != nil {
				return err
			}
			q, _ := a.svc.Cart.Store().Quantity(b.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "%q in cart: %d\n", b.Name, q)
			return nil
		},
	}
	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Cart.Remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed book %d from cart\n", id)
			return nil
		},
	}
	qty := &cobra.Command{
		Use:   "qty <id> <delta>",
		Short: "Change a line quantity locally",
		Args:  cobra.ExactArgs(2),
		// negative deltas look like flags
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta %q: %w", args[1], errs.ErrValidation)
			}
			if _, ok := a.svc.Cart.Store().Quantity(id); !ok {
				return fmt.Errorf("book %d is not in the cart: %w", id, errs.ErrNotFound)
			}
			a.svc.Cart.UpdateQuantity(id, delta)
			q, _ := a.svc.Cart.Store().Quantity(id)
			fmt.Fprintf(cmd.OutOrStdout(), "book %d quantity: %d\n", id, q)
			return nil
		},
	}
	checkout := &cobra.Command{
		Use:   "checkout",
		Short: "Buy everything in the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			total := a.svc.Cart.Store().Total()
			if err := a.svc.Cart.Checkout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paid %.2f\n", total)
			return nil
		},
	}
	cmd.AddCommand(add, rm, qty, checkout)
	return cmd
}

// ---- favorites ----

func (a *app) favsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favs",
		Short: "List favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := a.svc.Favorites.List(cmd.Context())
			if err != nil {
				return err
			}
			a.printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}
}

func (a *app) favCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fav <id>",
		Short: "Toggle a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.findBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			added, err := a.svc.Favorites.Toggle(cmd.Context(), b)
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "%q added to favorites\n", b.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%q removed from favorites\n", b.Name)
			}
			return nil
		},
	}
}

// ---- lending ----

func (a *app) borrowedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "borrowed",
		Short: "List borrowed books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := a.svc.Borrow.Borrowed(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(books) == 0 {
				fmt.Fprintln(out, "nothing borrowed")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDUE")
			for _, b := range books {
				due := "-"
				if !b.DueAt.IsZero() {
					due = b.DueAt.Local().Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", b.ID, b.Name, due)
			}
			return tw.Flush()
		},
	}
}

func (a *app) borrowCmd() *cobra.Command {
	days := a.cfg.BorrowDays
	cmd := &cobra.Command{
		Use:   "borrow <id>",
		Short: "Borrow a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Borrow.Borrow(cmd.Context(), id, days); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "borrowed book %d for %d days\n", id, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", days, "lending period (1-60)")
	return cmd
}

func (a *app) returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <id>",
		Short: "Give a borrowed book back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Borrow.GiveBack(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "returned book %d\n", id)
			return nil
		},
	}
}

// ---- accounts ----

func (a *app) ordersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Show purchase history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orders, err := a.svc.Orders.History(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(orders) == 0 {
				fmt.Fprintln(out, "no orders yet")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tQTY\tAT")
			for _, o := range orders {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", o.ID, o.Name, o.OrderedQuantity, o.OrderedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.svc.Users.All(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tEMAIL\tROLE\tBALANCE")
			for _, u := range users {
				fmt.Fprintf(tw, "%d\t%s\t%s %s\t%s\t%s\t%.2f\n", u.ID, u.Username, u.Name, u.Lastname, u.Email, roleName(u.Role), u.Balance)
			}
			return tw.Flush()
		},
	}

	var form validate.Registration
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
	}
	askPassword := a.registrationFlags(add, &form)
	add.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := askPassword(); err != nil {
			return err
		}
		u, err := a.svc.Users.Create(cmd.Context(), form)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %d %s\n", u.ID, u.Username)
		return nil
	}
	cmd.AddCommand(add)
	return cmd
}

// ---- diagnostics ----

func (a *app) metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show client counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			families, err := a.reg.Gather()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					fmt.Fprintf(out, "%s%s %g\n", mf.GetName(), labels(m), value(m))
				}
			}
			return nil
		},
	}
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}

// ---- utils ----

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("book id %q: %w", s, errs.ErrValidation)
	}
	return id, nil
}

// findBook resolves an id against the cached catalog.
func (a *app) findBook(ctx context.Context, raw string) (model.Book, error) {
	id, err := parseID(raw)
	if err != nil {
		return model.Book{}, err
	}
	books, err := a.svc.Books.List(ctx)
	if err != nil {
		return model.Book{}, err
	}
	i := slices.IndexFunc(books, func(b model.Book) bool { return b.ID == id })
	if i < 0 {
		return model.Book{}, fmt.Errorf("book %d: %w", id, errs.ErrNotFound)
	}
	return books[i], nil
}

func (a *app) printBooks(w io.Writer, books []model.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "no books")
		return
	}
	favs := a.svc.Favorites.Store()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAUTHOR\tGENRE\tPRICE\tSTOCK\tFAV")
	for _, b := range books {
		mark := ""
		if favs.Contains(b.ID) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%d\t%s\n", b.ID, b.Name, b.Author, b.Genre, b.Price, b.Quantity, mark)
	}
	_ = tw.Flush()
}

// describe turns an error into the line the shell prints.
func describe(err error) string {
	var ve *validate.Error
	var ae *errs.APIError
	switch {
	case errors.As(err, &ve):
		return "invalid input: " + ve.Error()
	case errors.As(err, &ae):
		if ae.Message != "" {
			return ae.Message
		}
		return ae.Error()
	case errors.Is(err, errs.ErrUnauthenticated):
		return "please log in first"
	case errors.Is(err, errs.ErrForbidden):
		return "admin only"
	case errors.Is(err, errs.ErrUnavailable):
		return "service unavailable, try again later"
	default:
		return err.Error()
	}
}
