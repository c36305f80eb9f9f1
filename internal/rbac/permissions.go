package rbac

// Permissions granted by the identity service and checked by the API.
const (
	PermInventoryView      = "inventory.view"
	PermInventoryAdjust    = "inventory.adjust"
	PermInventoryApprove   = "inventory.approve"
	PermInventoryPOS       = "inventory.pos"
	PermProcurementManage  = "procurement.manage"
	PermProcurementApprove = "procurement.approve"
	PermProcurementReceive = "procurement.receive"
	PermTransferManage     = "transfer.manage"
	PermTransferApprove    = "transfer.approve"
	PermTransferShip       = "transfer.ship"
	PermTransferReceive    = "transfer.receive"
)

// All lists every permission, used by tooling that mints development tokens.
func All() []string {
	return []string{
		PermInventoryView, PermInventoryAdjust, PermInventoryApprove, PermInventoryPOS,
		PermProcurementManage, PermProcurementApprove, PermProcurementReceive,
		PermTransferManage, PermTransferApprove, PermTransferShip, PermTransferReceive,
	}
}
