package models

import (
	"log"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Account{},
		&FiscalPeriod{},
		&Transaction{}, &LedgerLine{}, &TransactionSequence{},
		&PurchaseOrder{}, &PurchaseOrderLine{},
		&GoodsReceipt{}, &GoodsReceiptLine{},
		&VendorInvoice{}, &VendorInvoiceLine{},
		&ThreeWayMatch{}, &MatchDiscrepancy{}, &MatchToleranceConfig{},
		&BankTransaction{}, &ReconciliationMatch{}, &ReconciliationMatchLine{},
		&IdempotencyKey{},
		&EventRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
