package main

import (
	"github.com/rs/zerolog"

	"github.com/adred-codev/toroni/internal/config"
)

// runInit placement-constructs the ring, reader-info, topic-generation, and
// agent-stats shared-memory regions and exits. Writer and reader
// subcommands can also create these regions themselves on first run, but a
// separate init step lets an orchestrator set them up once before spawning
// any number of writer/reader processes.
func runInit(cfg *config.Config, log zerolog.Logger) error {
	r, err := attachRegions(cfg, log)
	if err != nil {
		return err
	}
	log.Info().
		Bool("createdRing", r.ringRegion.IsCreator()).
		Bool("createdReaderInfo", r.infoRegion.IsCreator()).
		Bool("createdTopicGen", r.genRegion.IsCreator()).
		Bool("createdStats", r.statsRegion.IsCreator()).
		Msg("agent: regions ready")
	return nil
}
