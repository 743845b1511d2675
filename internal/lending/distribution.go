package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentDistributor turns a payment amount into a distribution plan and
// applies or reverses it against a loan. Distribution order is strict:
// penalty, then interest and capital installment by installment in schedule
// order, with no skipping.
type PaymentDistributor struct{}

// NewPaymentDistributor builds a distributor.
func NewPaymentDistributor() *PaymentDistributor {
	return &PaymentDistributor{}
}

// Validate rejects non-positive amounts and payments exceeding the total
// pending debt by more than the overpayment tolerance. Slight overpayment
// is allowed to absorb rounding, gross overpayment is not.
func (d *PaymentDistributor) Validate(loan *Loan, amount decimal.Decimal, penalty PenaltyResult) error {
	if !amount.IsPositive() {
		return validationError("payment amount must be positive")
	}
	if err := loan.CheckConsistency(); err != nil {
		return err
	}
	maxPayable := penalty.PendingPenalty.
		Add(loan.PendingInterest()).
		Add(loan.PendingCapital())
	if amount.GreaterThan(maxPayable.Add(overpayTolerance)) {
		return validationError("payment %s exceeds pending debt %s", amount, maxPayable)
	}
	return nil
}

// Distribute plans how amount splits across penalty, interest and capital
// as of referenceDate (zero means now). The loan is not mutated; the
// returned distribution is what Apply later persists.
func (d *PaymentDistributor) Distribute(loan *Loan, amount decimal.Decimal, penalty PenaltyResult, referenceDate time.Time) (PaymentDistribution, error) {
	if err := d.Validate(loan, amount, penalty); err != nil {
		return PaymentDistribution{}, err
	}
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}
	reference := truncateToDay(referenceDate)

	dist := PaymentDistribution{
		Amount:          amount,
		AppliedPenalty:  decimal.Zero,
		AppliedInterest: decimal.Zero,
		AppliedCapital:  decimal.Zero,
	}
	remainder := amount

	// Penalty first.
	dist.AppliedPenalty = decimal.Min(remainder, penalty.PendingPenalty)
	remainder = remainder.Sub(dist.AppliedPenalty)

	// Sequential fill over the schedule. Redito allows interest on at most
	// one not-yet-due installment per payment.
	futurePrepaid := false
	for i := range loan.Schedule {
		if remainder.LessThanOrEqual(centTolerance) {
			break
		}
		q := &loan.Schedule[i]
		if q.Status == InstallmentPaid {
			continue
		}
		isFuture := truncateToDay(q.DueDate).After(reference)
		if loan.LendingType == LendingRedito && isFuture {
			if futurePrepaid {
				break
			}
			futurePrepaid = true
		}

		update := InstallmentUpdate{
			Number:   q.Number,
			Interest: decimal.Zero,
			Capital:  decimal.Zero,
		}
		toInterest := decimal.Min(remainder, q.PendingInterest())
		if toInterest.IsPositive() {
			update.Interest = toInterest
			remainder = remainder.Sub(toInterest)
		}
		toCapital := decimal.Min(remainder, q.PendingCapital())
		if toCapital.IsPositive() {
			update.Capital = toCapital
			remainder = remainder.Sub(toCapital)
		}
		if update.Interest.IsZero() && update.Capital.IsZero() {
			continue
		}
		update.NewStatus = projectedStatus(q, update)
		dist.AppliedInterest = dist.AppliedInterest.Add(update.Interest)
		dist.AppliedCapital = dist.AppliedCapital.Add(update.Capital)
		dist.InstallmentUpdates = append(dist.InstallmentUpdates, update)
	}

	// Redito: once the single prepayable installment is covered, the rest
	// pays down outstanding capital on the aggregate.
	if loan.LendingType == LendingRedito && remainder.GreaterThan(centTolerance) {
		toCapital := decimal.Min(remainder, loan.CurrentCapital)
		dist.AppliedCapital = dist.AppliedCapital.Add(toCapital)
		remainder = remainder.Sub(toCapital)
	}

	dist.IsFullPayoff = d.projectedPayoff(loan, dist)
	return dist, nil
}

// projectedStatus computes the status an installment lands on once the
// update is applied.
func projectedStatus(q *Installment, u InstallmentUpdate) InstallmentStatus {
	paidInterest := q.PaidInterest.Add(u.Interest)
	paidCapital := q.PaidCapital.Add(u.Capital)
	switch {
	case paidInterest.GreaterThanOrEqual(q.InterestAmount.Sub(centTolerance)) &&
		paidCapital.GreaterThanOrEqual(q.PrincipalAmount.Sub(centTolerance)):
		return InstallmentPaid
	case paidInterest.Add(paidCapital).GreaterThan(decimal.Zero):
		return InstallmentPartial
	default:
		return InstallmentPending
	}
}

// projectedPayoff reports whether the loan settles once the distribution is
// applied: zero outstanding capital for redito, every installment paid
// otherwise.
func (d *PaymentDistributor) projectedPayoff(loan *Loan, dist PaymentDistribution) bool {
	if loan.LendingType == LendingRedito {
		return loan.CurrentCapital.Sub(dist.AppliedCapital).LessThanOrEqual(centTolerance)
	}
	updates := make(map[int]InstallmentUpdate, len(dist.InstallmentUpdates))
	for _, u := range dist.InstallmentUpdates {
		updates[u.Number] = u
	}
	for i := range loan.Schedule {
		q := &loan.Schedule[i]
		if q.Status == InstallmentPaid {
			continue
		}
		if u, ok := updates[q.Number]; !ok || u.NewStatus != InstallmentPaid {
			return false
		}
	}
	return len(loan.Schedule) > 0
}

// Apply mutates the loan with a planned distribution: installment paid
// fields, cumulative paid penalty, outstanding capital and statuses. The
// caller owns atomic persistence of the result.
func (d *PaymentDistributor) Apply(loan *Loan, dist PaymentDistribution, paidAt time.Time) error {
	if err := loan.CheckConsistency(); err != nil {
		return err
	}
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	byNumber := make(map[int]*Installment, len(loan.Schedule))
	for i := range loan.Schedule {
		byNumber[loan.Schedule[i].Number] = &loan.Schedule[i]
	}
	for _, u := range dist.InstallmentUpdates {
		q, ok := byNumber[u.Number]
		if !ok {
			return ErrStateInconsistent
		}
		q.PaidInterest = q.PaidInterest.Add(u.Interest)
		q.PaidCapital = q.PaidCapital.Add(u.Capital)
		q.PaidAmount = q.PaidInterest.Add(q.PaidCapital)
		q.RefreshStatus()
		if q.Status == InstallmentPaid {
			t := paidAt
			q.PaidDate = &t
		}
	}

	// Distribute caps capital at the pending amount, so this cannot go
	// negative beyond tolerance; no clamping, or Reverse would stop being
	// the exact inverse.
	loan.Penalty.PaidPenalty = loan.Penalty.PaidPenalty.Add(dist.AppliedPenalty)
	loan.CurrentCapital = loan.CurrentCapital.Sub(dist.AppliedCapital)

	if dist.IsFullPayoff || (loan.CurrentCapital.LessThanOrEqual(centTolerance) && loan.IsSettled()) {
		loan.Status = LoanStatusPaid
	} else {
		loan.RefreshStatus(paidAt)
	}
	loan.UpdatedAt = paidAt
	return nil
}

// Reverse un-applies a previously applied distribution. It walks the
// schedule from the most recently paid installment backward, subtracting
// recorded paid interest and capital until the reversed amounts are fully
// un-applied. Reverse(Apply(loan, d), d) restores the loan exactly.
func (d *PaymentDistributor) Reverse(loan *Loan, dist PaymentDistribution) error {
	if err := loan.CheckConsistency(); err != nil {
		return err
	}

	interestLeft := dist.AppliedInterest
	capitalLeft := dist.AppliedCapital
	if loan.LendingType == LendingRedito {
		// Schedule rows carry no capital; the whole capital portion goes
		// back on the aggregate below.
		capitalLeft = decimal.Zero
	}

	for i := len(loan.Schedule) - 1; i >= 0; i-- {
		if interestLeft.LessThanOrEqual(centTolerance) && capitalLeft.LessThanOrEqual(centTolerance) {
			break
		}
		q := &loan.Schedule[i]
		if !q.PaidAmount.IsPositive() {
			continue
		}
		// Unwind in the inverse of the fill order: capital, then interest.
		backCapital := decimal.Min(capitalLeft, q.PaidCapital)
		if backCapital.IsPositive() {
			q.PaidCapital = q.PaidCapital.Sub(backCapital)
			capitalLeft = capitalLeft.Sub(backCapital)
		}
		backInterest := decimal.Min(interestLeft, q.PaidInterest)
		if backInterest.IsPositive() {
			q.PaidInterest = q.PaidInterest.Sub(backInterest)
			interestLeft = interestLeft.Sub(backInterest)
		}
		q.PaidAmount = q.PaidInterest.Add(q.PaidCapital)
		q.RefreshStatus()
		if q.Status != InstallmentPaid {
			q.PaidDate = nil
		}
	}
	if interestLeft.GreaterThan(centTolerance) || capitalLeft.GreaterThan(centTolerance) {
		return ErrStateInconsistent
	}

	loan.CurrentCapital = loan.CurrentCapital.Add(dist.AppliedCapital)
	loan.Penalty.PaidPenalty = loan.Penalty.PaidPenalty.Sub(dist.AppliedPenalty)
	if loan.Penalty.PaidPenalty.IsNegative() {
		loan.Penalty.PaidPenalty = decimal.Zero
	}
	loan.RefreshStatus(time.Now())
	return nil
}
