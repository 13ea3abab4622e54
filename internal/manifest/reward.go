package manifest

import (
	"strings"

	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
)

// classifyReward maps free-text reward descriptions onto the reward filter
// buckets. The keyword order is part of the filter contract: "Title reward:
// Mount Collector" is a title, "Reward: Mount" is a mount.
func classifyReward(description string) domain.RewardType {
	if description == "" {
		return ""
	}
	reward := strings.ToLower(description)
	switch {
	case strings.Contains(reward, "title:"), strings.Contains(reward, "title reward"):
		return domain.RewardTitle
	case strings.Contains(reward, "mount"):
		return domain.RewardMount
	case strings.Contains(reward, "pet"), strings.Contains(reward, "companion"):
		return domain.RewardPet
	case strings.Contains(reward, "toy"):
		return domain.RewardToy
	case strings.Contains(reward, "appearance"), strings.Contains(reward, "transmog"):
		return domain.RewardTransmog
	case strings.Contains(reward, "title"):
		return domain.RewardTitle
	default:
		return domain.RewardOther
	}
}
