package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated    = "order.created"
	TopicOrderConfirmed  = "order.confirmed"
	TopicOrderCompleted  = "order.completed"
	TopicOrderCancelled  = "order.cancelled"
	TopicPromoRedeemed   = "promo.redeemed"
	TopicCreditAdjusted  = "credit.adjusted"
	TopicCashbackAwarded = "cashback.awarded"
	TopicRewardClaimed   = "reward.claimed"
	TopicReferralApplied = "referral.applied"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderConfirmed,
		TopicOrderCompleted,
		TopicOrderCancelled,
		TopicPromoRedeemed,
		TopicCreditAdjusted,
		TopicCashbackAwarded,
		TopicRewardClaimed,
		TopicReferralApplied,
	}
}
