package service

// CalcFee applies a gateway's published fee formula to an amount in minor
// units. The formula is a config lookup, not read back from the gateway;
// the result is provisional and only affects net_amount, never the amount
// credited to the invoice.
func (svc *PaymentsService) CalcFee(gatewayName string, amount int64) int64 {
	schedule, ok := svc.Config.FeeSchedule[gatewayName]
	if !ok {
		return 0
	}
	return CalcFee(schedule, amount)
}

func CalcFee(schedule FeeSchedule, amount int64) int64 {
	fee := amount*schedule.Bps/10000 + schedule.Fixed
	if fee > amount {
		fee = amount
	}
	if fee < 0 {
		fee = 0
	}
	return fee
}

// ChargeAmounts splits a charge between what the gateway collects (gross)
// and what is kept after fees (net). amount is always what the invoice is
// credited; when the customer bears the fee it is collected on top.
func ChargeAmounts(amount, fee int64, feeChargedToCustomer bool) (gross, net int64) {
	if feeChargedToCustomer {
		return amount + fee, amount
	}
	return amount, amount - fee
}
