package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cardex-server/config"
	"cardex-server/models"
	"cardex-server/services"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	seedFile  string
	seedForce bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sample cards into the card store",
	Long: `Load cards from a JSON array into MongoDB.

The collection is only seeded when it is empty unless --force is given,
in which case cards in the file replace existing cards with the same id.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "cards.json", "JSON file with an array of cards")
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "seed even if the collection already has cards")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreBackend == config.BackendMemory {
		return fmt.Errorf("seed needs a persistent store, STORE_BACKEND is %q", cfg.StoreBackend)
	}
	f, err := os.Open(seedFile)
	if err != nil {
		return err
	}
	defer f.Close()
	cards, err := readCards(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", seedFile, err)
	}

	ctx := cmd.Context()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	redisClient, err := services.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	n, err := seedCards(ctx, st.cards, services.NewCardService(st.cards, redisClient, nil, nil), cards, seedForce)
	if err != nil {
		return err
	}
	log.Infof("Seeded %d cards", n)
	return nil
}

func readCards(r io.Reader) ([]models.Card, error) {
	var cards []models.Card
	if err := json.NewDecoder(r).Decode(&cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// seedCards saves cards through the card service so they are validated
// and geo indexed. It does nothing when the store already has cards and
// force is false.
func seedCards(ctx context.Context, store services.CardStore, cardService *services.CardService, cards []models.Card, force bool) (int, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 && !force {
		log.Infof("Card store already has %d cards, skipping seed", count)
		return 0, nil
	}
	seeded := 0
	for _, c := range cards {
		if _, err := cardService.Put(ctx, c.ID, c); err != nil {
			return seeded, fmt.Errorf("card %q: %w", c.ID, err)
		}
		seeded++
	}
	return seeded, nil
}
