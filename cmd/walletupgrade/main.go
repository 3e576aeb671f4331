// Command walletupgrade migrates an Indy-SDK wallet database into the
// Askar store layout, offline, in one of three deployment shapes: a
// single database-per-wallet, a multi-wallet-single-table store split
// into per-tenant profiles, or a multi-wallet-single-table store split
// into one brand-new store per wallet.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/store"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/strategy"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(exitCodeFor(err))
	}
}

func rootCommand() *cobra.Command {
	var (
		uri               string
		allowMissing      bool
		deleteIndyWallets bool
		skipConfirmation  bool
	)

	root := &cobra.Command{
		Use:   "walletupgrade",
		Short: "Migrate an Indy-SDK wallet database to the Askar store layout",
	}
	root.PersistentFlags().StringVar(&uri, "uri", "", "source wallet database URI (sqlite://path or postgres://...)")
	root.PersistentFlags().BoolVar(&allowMissing, "allow-missing-wallet", false, "proceed when a declared wallet is absent from the source database")
	root.PersistentFlags().BoolVar(&deleteIndyWallets, "delete-indy-wallets", false, "remove the legacy Indy wallet database once migration succeeds")
	root.PersistentFlags().BoolVar(&skipConfirmation, "skip-confirmation", false, "do not prompt before deleting legacy wallet data")

	root.AddCommand(dbpwCommand(&uri, &deleteIndyWallets, &skipConfirmation))
	root.AddCommand(mwstProfilesCommand(&uri, &deleteIndyWallets, &skipConfirmation))
	root.AddCommand(mwstStoresCommand(&uri, &allowMissing, &deleteIndyWallets, &skipConfirmation))
	return root
}

func dbpwCommand(uri *string, deleteIndyWallets, skipConfirmation *bool) *cobra.Command {
	var walletName, walletKey string
	cmd := &cobra.Command{
		Use:   "dbpw",
		Short: "Migrate a single database-per-wallet store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			driver, err := openDriver(*uri)
			if err != nil {
				return err
			}
			defer driver.Close(ctx)

			result, err := strategy.RunDBPW(ctx, driver, walletName, walletKey)
			if err != nil {
				return err
			}
			if result.AlreadyUpgraded {
				log.Info("wallet already upgraded, nothing to do", "wallet", walletName)
				return nil
			}
			log.Info("migration complete", "wallet", walletName, "items", result.ItemsMigrated)

			if *deleteIndyWallets {
				log.Warn("--delete-indy-wallets has no effect on a database-per-wallet migration: the legacy tables were already dropped in place")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&walletName, "wallet-name", "", "wallet name; becomes the store's default profile")
	cmd.Flags().StringVar(&walletKey, "wallet-key", "", "wallet passphrase")
	cmd.MarkFlagRequired("wallet-name")
	cmd.MarkFlagRequired("wallet-key")
	return cmd
}

func mwstProfilesCommand(uri *string, deleteIndyWallets, skipConfirmation *bool) *cobra.Command {
	var baseURI, subURI, baseWalletID, baseWalletName, baseWalletKey string
	cmd := &cobra.Command{
		Use:   "mwst-as-profiles",
		Short: "Split a multi-wallet-single-table store into a base store plus a multi-profile sub store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source, err := openDriver(*uri)
			if err != nil {
				return err
			}
			defer source.Close(ctx)
			baseDriver, err := openDriver(baseURI)
			if err != nil {
				return err
			}
			defer baseDriver.Close(ctx)
			subDriver, err := openDriver(subURI)
			if err != nil {
				return err
			}
			defer subDriver.Close(ctx)

			deleteRequested := *deleteIndyWallets && confirmDeletion(*skipConfirmation)
			result, err := strategy.RunMWSTProfiles(ctx, source, baseDriver, subDriver, strategy.MWSTProfilesInput{
				BaseWalletID:    baseWalletID,
				BaseProfileName: baseWalletName,
				BasePassphrase:  baseWalletKey,
				DeleteRequested: deleteRequested,
			})
			if err != nil {
				return err
			}
			log.Info("base migration complete", "items", result.Base.ItemsMigrated)
			for id, tenant := range result.Tenants {
				log.Info("tenant migration complete", "wallet_id", id, "items", tenant.ItemsMigrated)
			}
			if len(result.Leftover) > 0 {
				log.Warn("legacy database retained: some wallet_ids were never covered by a wallet_record", "count", len(result.Leftover))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURI, "base-uri", "", "target URI for the base (agency) store")
	cmd.Flags().StringVar(&subURI, "sub-uri", "", "target URI for the multi-profile sub store")
	cmd.Flags().StringVar(&baseWalletID, "base-wallet-id", "", "wallet_id of the base wallet's rows in the source table")
	cmd.Flags().StringVar(&baseWalletName, "base-wallet-name", "", "name of the base wallet; becomes its profile and default_profile")
	cmd.Flags().StringVar(&baseWalletKey, "base-wallet-key", "", "base wallet passphrase")
	for _, f := range []string{"base-uri", "sub-uri", "base-wallet-id", "base-wallet-name", "base-wallet-key"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func mwstStoresCommand(uri *string, allowMissing, deleteIndyWallets, skipConfirmation *bool) *cobra.Command {
	var wallets []string
	var targetURITemplate string
	cmd := &cobra.Command{
		Use:   "mwst-as-stores",
		Short: "Split a multi-wallet-single-table store into one brand-new store per wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source, err := openDriver(*uri)
			if err != nil {
				return err
			}
			defer source.Close(ctx)

			declared, err := parseWalletAssignments(wallets)
			if err != nil {
				return err
			}
			if _, err := openDriver(fmt.Sprintf(targetURITemplate, "")); err != nil {
				return err
			}

			deleteRequested := *deleteIndyWallets && confirmDeletion(*skipConfirmation)
			results, missing, err := strategy.RunMWSTAsStores(ctx, source, declared, *allowMissing, deleteRequested, func(walletID string) store.Driver {
				driver, err := openDriver(fmt.Sprintf(targetURITemplate, walletID))
				if err != nil {
					panic(err) // unreachable: the template is validated before first use
				}
				return driver
			})
			if err != nil {
				return err
			}
			for id, result := range results {
				log.Info("wallet migration complete", "wallet_id", id, "items", result.ItemsMigrated)
			}
			for _, m := range missing {
				log.Warn("wallet skipped", "err", m)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&wallets, "wallet", nil, "wallet_id=passphrase pair; repeatable")
	cmd.Flags().StringVar(&targetURITemplate, "target-uri-template", "", "target URI template with one %s placeholder for the wallet_id")
	cmd.MarkFlagRequired("wallet")
	cmd.MarkFlagRequired("target-uri-template")
	return cmd
}

func parseWalletAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		id, key, found := strings.Cut(p, "=")
		if !found || id == "" {
			return nil, walleterr.New(walleterr.IOError, "malformed --wallet value, expected wallet_id=passphrase: "+p)
		}
		out[id] = key
	}
	return out, nil
}

func openDriver(uri string) (store.Driver, error) {
	switch {
	case strings.HasPrefix(uri, "sqlite://"):
		return store.NewSQLiteDriver(strings.TrimPrefix(uri, "sqlite://")), nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return store.NewPostgresDriver(uri), nil
	default:
		return nil, walleterr.New(walleterr.IOError, "unsupported store URI scheme: "+uri)
	}
}

// confirmDeletion prompts the operator before a legacy wallet is removed.
// Declining, or not being able to ask at all (stdin is not a TTY and
// --skip-confirmation was not passed), means the legacy data is kept.
func confirmDeletion(skip bool) bool {
	if skip {
		return true
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Fprint(os.Stderr, "Delete the legacy Indy wallet now that migration succeeded? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func exitCodeFor(err error) int {
	for k := walleterr.NotIndyWallet; k <= walleterr.DBError; k++ {
		if walleterr.Is(err, k) {
			return int(k) + 1
		}
	}
	return 1
}
