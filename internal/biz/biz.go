package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewClock,
	NewPlanPolicy,
	NewServiceConfig,
	NewUserUseCase,
	NewQuotaUseCase,
	NewBudgetUseCase,
	NewPricingUseCase,
	NewUpgradeTokenUseCase,
	NewPaymentUseCase,
	NewReconcileUseCase,
	NewSubscriptionUseCase,
	NewTransactionRecordUseCase,
	NewPendingUploadUseCase,
	NewSummaryUseCase,
)
