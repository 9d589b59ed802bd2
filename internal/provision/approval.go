package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ipv6-provision-backend/internal/addr"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/state"
	"ipv6-provision-backend/internal/store"
)

const (
	minBuilding     = 1
	maxBuilding     = 30
	minBusinessType = 1
	maxBusinessType = 5
	maxDepartmentID = 15
)

// ApprovalRequest is a user's request to provision a device.
type ApprovalRequest struct {
	Owner        string `json:"owner" binding:"required"`
	DepartmentID int64  `json:"department_id"`
	Building     int    `json:"building"`
	BusinessType int    `json:"business_type"`
	DUID         string `json:"duid"`
	MACAddress   string `json:"mac_address" binding:"required"`
}

func (s *Service) validateApproval(ctx context.Context, req *ApprovalRequest) error {
	req.Owner = strings.TrimSpace(req.Owner)
	if req.Owner == "" || utf8.RuneCountInString(req.Owner) > 32 {
		return &FieldError{Field: "owner", Message: "用户名不能为空且不超过32个字符"}
	}
	if req.Building < minBuilding || req.Building > maxBuilding {
		return &FieldError{Field: "building", Message: fmt.Sprintf("楼栋范围为%d-%d", minBuilding, maxBuilding)}
	}
	if req.BusinessType < minBusinessType || req.BusinessType > maxBusinessType {
		return &FieldError{Field: "business_type", Message: fmt.Sprintf("业务类型范围为%d-%d", minBusinessType, maxBusinessType)}
	}
	if req.DepartmentID < 0 || req.DepartmentID > maxDepartmentID {
		return &FieldError{Field: "department_id", Message: fmt.Sprintf("部门编号范围为0-%d", maxDepartmentID)}
	}
	mac, err := addr.NormalizeMAC(req.MACAddress)
	if err != nil {
		return &FieldError{Field: "mac_address", Message: "格式：00:00:00:00:00:00"}
	}
	req.MACAddress = mac
	req.DUID = strings.TrimSpace(req.DUID)

	if _, err := s.store.GetDepartment(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &FieldError{Field: "department_id", Message: "部门不存在"}
		}
		return err
	}
	return nil
}

// SubmitApproval records a pending approval request.
func (s *Service) SubmitApproval(ctx context.Context, req ApprovalRequest) (*model.DeviceApproval, error) {
	if err := s.validateApproval(ctx, &req); err != nil {
		return nil, err
	}

	a := &model.DeviceApproval{
		Owner:        req.Owner,
		DepartmentID: req.DepartmentID,
		Building:     req.Building,
		BusinessType: req.BusinessType,
		DUID:         req.DUID,
		MACAddress:   req.MACAddress,
		Status:       model.ApprovalPending,
	}
	if err := s.store.CreateApproval(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info().Int64("approval_id", a.ID).Str("owner", a.Owner).Str("mac", a.MACAddress).Msg("Approval submitted")
	return a, nil
}

// ApproveResult is the outcome of a granted approval.
type ApproveResult struct {
	Approval *model.DeviceApproval
	Binding  *model.AddressBinding
	Device   *model.Device
	Dispatch provider.Result
}

// Approve generates the device's address, dispatches it and, once the
// provider accepts the request, creates the device and grants the approval.
// When the provider does not accept it, a binding created here is deleted and
// a reused one is marked failed; the approval stays pending.
func (s *Service) Approve(ctx context.Context, approvalID int64, callbackURL string) (*ApproveResult, error) {
	a, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.ApprovalPending {
		return nil, fmt.Errorf("%w: approval %d is already %s", ErrConflict, a.ID, a.Status)
	}

	ip, err := addr.Generate(int(a.DepartmentID), a.Building, a.BusinessType, a.MACAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	ipv6 := ip.String()

	b, created, err := s.prepareBinding(ctx, a, ipv6)
	if err != nil {
		return nil, err
	}

	var duid *string
	if a.DUID != "" {
		duid = &a.DUID
	}
	res := s.client.Dispatch(ctx, provider.BindingRequest{
		RecordID:    b.ID,
		IPv6Address: ipv6,
		MACAddress:  a.MACAddress,
		DUID:        duid,
		CallbackURL: callbackURL,
	})

	if !res.Accepted {
		s.rollbackBinding(ctx, b, created, res)
		s.log.Warn().Int64("approval_id", a.ID).Str("error", res.ErrorText()).Msg("Approval dispatch rejected")
		return nil, &DispatchError{Result: res}
	}

	var device *model.Device
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		settled, err := s.settle(ctx, tx, b, state.BindingDispatchAccepted, res)
		if err != nil {
			return err
		}
		b = settled
		d, err := s.upsertDevice(ctx, tx, a)
		if err != nil {
			return err
		}
		device = d
		if err := state.ApplyApproval(a, state.ApprovalGranted); err != nil {
			return conflict(err)
		}
		return tx.SaveApproval(ctx, a)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record approval %d: %w", a.ID, err)
	}

	s.log.Info().
		Int64("approval_id", a.ID).
		Int64("binding_id", b.ID).
		Int64("device_id", device.ID).
		Str("ipv6", ipv6).
		Msg("Approval granted, awaiting binding callback")
	return &ApproveResult{Approval: a, Binding: b, Device: device, Dispatch: res}, nil
}

// prepareBinding reuses the binding already held by the approval's hardware
// address or creates a new one. Either way the record is pending and claimed
// for the dispatch that follows.
func (s *Service) prepareBinding(ctx context.Context, a *model.DeviceApproval, ipv6 string) (*model.AddressBinding, bool, error) {
	departmentID := a.DepartmentID
	building := a.Building

	b, err := s.store.FindBindingByMAC(ctx, a.MACAddress)
	switch {
	case err == nil:
		b.Owner = a.Owner
		b.IPv6Address = ipv6
		b.DepartmentID = &departmentID
		b.Building = &building
		if err := s.claim(ctx, s.store, b, state.BindingQueued); err != nil {
			return nil, false, err
		}
		s.log.Info().Int64("binding_id", b.ID).Str("mac", a.MACAddress).Msg("Reusing existing binding")
		return b, false, nil
	case errors.Is(err, store.ErrNotFound):
		b = &model.AddressBinding{
			Owner:         a.Owner,
			IPv6Address:   ipv6,
			MACAddress:    a.MACAddress,
			DepartmentID:  &departmentID,
			Building:      &building,
			SendStatus:    model.BindingPending,
			DispatchUntil: s.now().Add(dispatchLease).Unix(),
		}
		if err := s.store.CreateBinding(ctx, b); err != nil {
			return nil, false, err
		}
		return b, true, nil
	default:
		return nil, false, err
	}
}

func (s *Service) rollbackBinding(ctx context.Context, b *model.AddressBinding, created bool, res provider.Result) {
	if created {
		if err := s.store.DeleteBinding(ctx, b.ID); err != nil {
			s.log.Error().Err(err).Int64("binding_id", b.ID).Msg("Failed to delete binding after rejected dispatch")
		}
		return
	}
	if _, err := s.settle(ctx, s.store, b, state.BindingDispatchFailed, res); err != nil {
		s.log.Error().Err(err).Int64("binding_id", b.ID).Msg("Failed to mark reused binding failed")
	}
}

func (s *Service) upsertDevice(ctx context.Context, tx store.Store, a *model.DeviceApproval) (*model.Device, error) {
	d, err := tx.FindDeviceByMAC(ctx, a.MACAddress)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		d = &model.Device{MACAddress: a.MACAddress}
	}

	var duid *string
	if a.DUID != "" {
		v := a.DUID
		duid = &v
	}
	d.Owner = a.Owner
	d.CreateTime = s.now()
	d.DepartmentID = a.DepartmentID
	d.Building = a.Building
	d.BusinessType = a.BusinessType
	d.DUID = duid
	d.Status = model.DeviceOnline

	if err := tx.SaveDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Reject closes a pending approval. Decided approvals cannot be reopened.
func (s *Service) Reject(ctx context.Context, approvalID int64) (*model.DeviceApproval, error) {
	a, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if err := state.ApplyApproval(a, state.ApprovalDenied); err != nil {
		return nil, conflict(err)
	}
	if err := s.store.SaveApproval(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info().Int64("approval_id", a.ID).Msg("Approval rejected")
	return a, nil
}
