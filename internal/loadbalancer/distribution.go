package loadbalancer

import "github.com/arloliu/eventproc/internal/types"

// quota computes the per-owner partition quota for P partitions distributed
// across O owners, per §4.4 Phase F.
func quota(partitionCount, ownerCount int) (minPerOwner, maxPerOwner int) {
	if ownerCount <= 0 {
		return 0, 0
	}
	minPerOwner = partitionCount / ownerCount
	maxPerOwner = minPerOwner + 1

	return minPerOwner, maxPerOwner
}

// ownerCounts tallies how many active partitions each owner holds.
func ownerCounts(active []types.PartitionOwnership) map[string]int {
	counts := make(map[string]int, len(active))
	for _, o := range active {
		counts[o.OwnerID]++
	}

	return counts
}

// claimEligible implements the Phase F eligibility rule: mine < minPerOwner,
// OR (mine == minPerOwner AND no other owner has fewer than minPerOwner).
func claimEligible(mine, minPerOwner int, counts map[string]int, self string) bool {
	if mine < minPerOwner {
		return true
	}
	if mine != minPerOwner {
		return false
	}
	for owner, count := range counts {
		if owner == self {
			continue
		}
		if count < minPerOwner {
			return false
		}
	}

	return true
}

// unclaimedPartitions returns the partitions in all with no active ownership
// record, preserving the input order.
func unclaimedPartitions(all []string, active []types.PartitionOwnership) []string {
	owned := make(map[string]struct{}, len(active))
	for _, o := range active {
		owned[o.PartitionID] = struct{}{}
	}

	var result []string
	for _, id := range all {
		if _, ok := owned[id]; !ok {
			result = append(result, id)
		}
	}

	return result
}

// overQuotaVictims returns the partitions held by owners with strictly more
// than maxPerOwner active partitions.
func overQuotaVictims(active []types.PartitionOwnership, counts map[string]int, maxPerOwner int) []string {
	var result []string
	for _, o := range active {
		if counts[o.OwnerID] > maxPerOwner {
			result = append(result, o.PartitionID)
		}
	}

	return result
}

// atMaxVictims returns the partitions held by owners at exactly maxPerOwner
// active partitions.
func atMaxVictims(active []types.PartitionOwnership, counts map[string]int, maxPerOwner int) []string {
	var result []string
	for _, o := range active {
		if counts[o.OwnerID] == maxPerOwner {
			result = append(result, o.PartitionID)
		}
	}

	return result
}

// claimTarget is the outcome of the Phase F selection algorithm.
type claimTarget struct {
	partitionID string
	reason      string // "unclaimed", "over_quota", "at_max"
	priorETag   string // version token to present, empty for a first claim
}

// selectClaimTarget runs steps 1-4 of Phase F and returns the chosen
// partition, or ok=false if nothing should be claimed this cycle.
func selectClaimTarget(
	rng *picker,
	allPartitions []string,
	active []types.PartitionOwnership,
	lastKnownETag map[string]string,
	mine, minPerOwner, maxPerOwner int,
	counts map[string]int,
) (claimTarget, bool) {
	if ids := unclaimedPartitions(allPartitions, active); len(ids) > 0 {
		id := rng.pick(ids)

		return claimTarget{partitionID: id, reason: "unclaimed", priorETag: lastKnownETag[id]}, true
	}

	if ids := overQuotaVictims(active, counts, maxPerOwner); len(ids) > 0 {
		id := rng.pick(ids)

		return claimTarget{partitionID: id, reason: "over_quota", priorETag: lastKnownETag[id]}, true
	}

	if mine < minPerOwner {
		if ids := atMaxVictims(active, counts, maxPerOwner); len(ids) > 0 {
			id := rng.pick(ids)

			return claimTarget{partitionID: id, reason: "at_max", priorETag: lastKnownETag[id]}, true
		}
	}

	return claimTarget{}, false
}
