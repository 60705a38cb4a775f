package handler

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (h *Handler) SyncSlashCommands(s *discordgo.Session) error {
	appID := s.State.User.ID
	log := h.logger.With(zap.String("guild", h.guildID))

	remoteCommands, err := s.ApplicationCommands(appID, h.guildID)
	if err != nil {
		return fmt.Errorf("could not fetch remote commands: %w", err)
	}
	plan := planSlashSync(h.registry.GetSlashDefinitions(), remoteCommands)

	for _, cmd := range plan.create {
		log.Info("creating slash command", zap.String("name", cmd.Name))
		if _, err := s.ApplicationCommandCreate(appID, h.guildID, cmd); err != nil {
			log.Error("failed to create slash command", zap.String("name", cmd.Name), zap.Error(err))
		}
	}
	for _, u := range plan.update {
		log.Info("updating slash command", zap.String("name", u.local.Name))
		if _, err := s.ApplicationCommandEdit(appID, h.guildID, u.remoteID, u.local); err != nil {
			log.Error("failed to update slash command", zap.String("name", u.local.Name), zap.Error(err))
		}
	}
	for _, cmd := range plan.remove {
		log.Info("deleting outdated slash command", zap.String("name", cmd.Name))
		if err := s.ApplicationCommandDelete(appID, h.guildID, cmd.ID); err != nil {
			log.Error("failed to delete slash command", zap.String("name", cmd.Name), zap.Error(err))
		}
	}

	log.Info("slash command sync complete",
		zap.Int("created", len(plan.create)),
		zap.Int("updated", len(plan.update)),
		zap.Int("deleted", len(plan.remove)))
	return nil
}

type slashUpdate struct {
	remoteID string
	local    *discordgo.ApplicationCommand
}

type slashPlan struct {
	create []*discordgo.ApplicationCommand
	update []slashUpdate
	remove []*discordgo.ApplicationCommand
}

// planSlashSync ローカル定義とリモートの差分を計算する
func planSlashSync(local, remote []*discordgo.ApplicationCommand) slashPlan {
	var plan slashPlan
	remoteByName := make(map[string]*discordgo.ApplicationCommand, len(remote))
	for _, cmd := range remote {
		remoteByName[cmd.Name] = cmd
	}

	for _, localCmd := range local {
		remoteCmd, exists := remoteByName[localCmd.Name]
		if !exists {
			plan.create = append(plan.create, localCmd)
			continue
		}
		if !commandsAreEqual(localCmd, remoteCmd) {
			plan.update = append(plan.update, slashUpdate{remoteID: remoteCmd.ID, local: localCmd})
		}
		delete(remoteByName, localCmd.Name)
	}

	for _, cmd := range remote {
		if _, stale := remoteByName[cmd.Name]; stale {
			plan.remove = append(plan.remove, cmd)
		}
	}
	return plan
}

func commandsAreEqual(c1, c2 *discordgo.ApplicationCommand) bool {
	if c1.Name != c2.Name || c1.Description != c2.Description {
		return false
	}
	if len(c1.Options) != len(c2.Options) {
		return false
	}

	opts1 := make([]*discordgo.ApplicationCommandOption, len(c1.Options))
	copy(opts1, c1.Options)
	sort.Slice(opts1, func(i, j int) bool { return opts1[i].Name < opts1[j].Name })

	opts2 := make([]*discordgo.ApplicationCommandOption, len(c2.Options))
	copy(opts2, c2.Options)
	sort.Slice(opts2, func(i, j int) bool { return opts2[i].Name < opts2[j].Name })

	for i := range opts1 {
		if !optionsAreEqual(opts1[i], opts2[i]) {
			return false
		}
	}
	return true
}

func optionsAreEqual(o1, o2 *discordgo.ApplicationCommandOption) bool {
	if o1.Type != o2.Type || o1.Name != o2.Name || o1.Description != o2.Description || o1.Required != o2.Required {
		return false
	}
	if len(o1.Choices) != len(o2.Choices) || len(o1.Options) != len(o2.Options) {
		return false
	}

	// Compare choices
	if len(o1.Choices) > 0 {
		// Sort choices by name for consistent comparison
		choices1 := make([]*discordgo.ApplicationCommandOptionChoice, len(o1.Choices))
		copy(choices1, o1.Choices)
		sort.Slice(choices1, func(i, j int) bool { return choices1[i].Name < choices1[j].Name })

		choices2 := make([]*discordgo.ApplicationCommandOptionChoice, len(o2.Choices))
		copy(choices2, o2.Choices)
		sort.Slice(choices2, func(i, j int) bool { return choices2[i].Name < choices2[j].Name })

		if !reflect.DeepEqual(choices1, choices2) {
			return false
		}
	}

	// Compare sub-options recursively
	if len(o1.Options) > 0 {
		subOpts1 := make([]*discordgo.ApplicationCommandOption, len(o1.Options))
		copy(subOpts1, o1.Options)
		sort.Slice(subOpts1, func(i, j int) bool { return subOpts1[i].Name < subOpts1[j].Name })

		subOpts2 := make([]*discordgo.ApplicationCommandOption, len(o2.Options))
		copy(subOpts2, o2.Options)
		sort.Slice(subOpts2, func(i, j int) bool { return subOpts2[i].Name < subOpts2[j].Name })

		for i := range subOpts1 {
			if !optionsAreEqual(subOpts1[i], subOpts2[i]) {
				return false
			}
		}
	}

	return true
}
