package bureau

import (
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/normalize"
)

// layout names the payload fields a bureau uses for each concept.
type layout struct {
	bureau    domain.Bureau
	table     normalize.StatusTable
	threshold float64

	subjectID  string
	name       string
	pan        string
	mobile     string
	email      string
	score      string
	reportDate string
	sector     string

	accounts   string
	enquiries  string
	employment string

	account accountFields
	enquiry enquiryFields
}

type accountFields struct {
	accountType    string
	lender         string
	opened         string
	closed         string
	reported       string
	limit          string
	highCredit     string
	balance        string
	overdue        string
	legacyHistory  string
	monthlyHistory string
}

type enquiryFields struct {
	date    string
	member  string
	purpose string
	amount  string
}

var cibilLayout = layout{
	bureau:    domain.BureauCIBIL,
	threshold: 60,
	table: normalize.StatusTable{
		ChunkWidth: 3,
		Codes: map[string]domain.Category{
			"XXX": domain.CategoryNotReported,
			"STD": domain.CategoryOnTime,
		},
	},
	subjectID:  "subjectId",
	name:       "name",
	pan:        "pan",
	mobile:     "mobile",
	email:      "email",
	score:      "score",
	reportDate: "reportDate",
	sector:     "occupationSector",
	accounts:   "accounts",
	enquiries:  "enquiries",
	employment: "employment",
	account: accountFields{
		accountType:    "accountType",
		lender:         "memberName",
		opened:         "dateOpened",
		closed:         "dateClosed",
		reported:       "dateReported",
		limit:          "creditLimit",
		highCredit:     "highCreditAmount",
		balance:        "currentBalance",
		overdue:        "amountOverdue",
		legacyHistory:  "paymentHistory",
		monthlyHistory: "monthlyPayStatus",
	},
	enquiry: enquiryFields{
		date:    "enquiryDate",
		member:  "memberName",
		purpose: "enquiryPurpose",
		amount:  "enquiryAmount",
	},
}

var equifaxLayout = layout{
	bureau:    domain.BureauEquifax,
	threshold: 60,
	table: normalize.StatusTable{
		ChunkWidth: 3,
		Codes: map[string]domain.Category{
			"CUR": domain.CategoryOnTime,
			"*":   domain.CategoryOnTime,
			"RES": domain.CategoryDelayed,
			"SET": domain.CategoryMissed,
			"SF":  domain.CategoryMissed,
			"CLS": domain.CategoryNotReported,
		},
	},
	subjectID:  "customerId",
	name:       "fullName",
	pan:        "panNumber",
	mobile:     "mobileNumber",
	email:      "emailAddress",
	score:      "creditScore",
	reportDate: "reportGeneratedOn",
	sector:     "industry",
	accounts:   "tradelines",
	enquiries:  "inquiries",
	employment: "employmentDetails",
	account: accountFields{
		accountType:    "accountTypeDesc",
		lender:         "institution",
		opened:         "openDate",
		closed:         "closeDate",
		reported:       "reportedDate",
		limit:          "sanctionAmount",
		highCredit:     "highCredit",
		balance:        "balance",
		overdue:        "pastDueAmount",
		legacyHistory:  "history48Months",
		monthlyHistory: "monthlyHistory",
	},
	enquiry: enquiryFields{
		date:    "inquiryDate",
		member:  "institution",
		purpose: "reason",
		amount:  "amount",
	},
}

// Experion encodes one period per character; digits count 30-day buckets.
var experionLayout = layout{
	bureau:    domain.BureauExperion,
	threshold: 65,
	table: normalize.StatusTable{
		ChunkWidth: 1,
		Codes: map[string]domain.Category{
			"0": domain.CategoryOnTime,
			"S": domain.CategoryOnTime,
			"1": domain.CategoryDelayed,
			"2": domain.CategoryDelayed,
			"B": domain.CategoryDelayed,
			"3": domain.CategoryMissed,
			"4": domain.CategoryMissed,
			"5": domain.CategoryMissed,
			"6": domain.CategoryMissed,
			"7": domain.CategoryMissed,
			"8": domain.CategoryMissed,
			"9": domain.CategoryMissed,
			"D": domain.CategoryMissed,
			"L": domain.CategoryMissed,
			"W": domain.CategoryMissed,
			"N": domain.CategoryNotReported,
			"?": domain.CategoryNotReported,
			".": domain.CategoryNotReported,
			"-": domain.CategoryNotReported,
		},
	},
	subjectID:  "applicantId",
	name:       "applicantName",
	pan:        "incomeTaxPan",
	mobile:     "mobilePhone",
	email:      "emailId",
	score:      "bureauScore",
	reportDate: "reportDate",
	sector:     "sector",
	accounts:   "caisAccounts",
	enquiries:  "capsApplications",
	employment: "employment",
	account: accountFields{
		accountType:    "accountType",
		lender:         "subscriberName",
		opened:         "openDate",
		closed:         "dateClosed",
		reported:       "dateReported",
		limit:          "creditLimitAmount",
		highCredit:     "highestCreditOrOriginalLoanAmount",
		balance:        "currentBalance",
		overdue:        "amountPastDue",
		legacyHistory:  "paymentHistoryProfile",
		monthlyHistory: "accountHistory",
	},
	enquiry: enquiryFields{
		date:    "dateOfRequest",
		member:  "subscriberName",
		purpose: "financePurpose",
		amount:  "amountFinanced",
	},
}
