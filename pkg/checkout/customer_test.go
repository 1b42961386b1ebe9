package checkout

import "testing"

func TestValidateAcceptsFrenchPhoneFormats(t *testing.T) {
	for _, phone := range []string{"0612345678", "+33612345678", "06 12 34 56 78", "06.12.34.56.78"} {
		c := validCustomer()
		c.Phone = phone
		if v := c.Validate(); !v.Valid {
			t.Errorf("phone %q rejected: %v", phone, v.Errors)
		}
	}
}

func TestValidateRejectsBadFrenchPhone(t *testing.T) {
	for _, phone := range []string{"061234567", "0012345678", "abc", ""} {
		c := validCustomer()
		c.Phone = phone
		if v := c.Validate(); v.Valid {
			t.Errorf("phone %q accepted", phone)
		}
	}
}

func TestValidateGenericPhoneFallback(t *testing.T) {
	c := validCustomer()
	c.Country = "DE"
	c.Phone = "+4915123456789"
	if v := c.Validate(); !v.Valid {
		t.Errorf("generic phone rejected: %v", v.Errors)
	}

	c.Phone = "12345"
	if v := c.Validate(); v.Valid {
		t.Error("short generic phone accepted")
	}
}

func TestValidateFirstInvalidFollowsFormOrder(t *testing.T) {
	c := CustomerInfo{Country: "FR"}
	v := c.Validate()
	if v.Valid {
		t.Fatal("empty form validated")
	}
	if v.FirstInvalid != "email" {
		t.Errorf("FirstInvalid = %q, want email", v.FirstInvalid)
	}

	c = validCustomer()
	c.LastName = ""
	c.City = ""
	v = c.Validate()
	if v.FirstInvalid != "lastName" {
		t.Errorf("FirstInvalid = %q, want lastName", v.FirstInvalid)
	}
}

func TestValidateEmail(t *testing.T) {
	c := validCustomer()
	c.Email = "not-an-email"
	if v := c.Validate(); v.Valid {
		t.Error("malformed email accepted")
	}
}
