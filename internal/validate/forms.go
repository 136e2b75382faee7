package validate

// Login is the login form.
type Login struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration is the sign-up form; it is also the POST /addUser body.
type Registration struct {
	Name     string `json:"name" validate:"required,min=3"`
	Lastname string `json:"lastname" validate:"required,min=3"`
	Username string `json:"username" validate:"required,min=5,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// NewBook is the admin form for adding a catalog entry; it is the POST /books body.
type NewBook struct {
	Author          string  `json:"author" validate:"required,min=3"`
	Name            string  `json:"name" validate:"required,min=3"`
	Price           float64 `json:"price" validate:"gte=0"`
	Genre           string  `json:"genre" validate:"required,min=3"`
	Description     string  `json:"description" validate:"required,min=20"`
	DescriptionLong string  `json:"descriptionLong" validate:"required,min=50"`
	Quantity        int     `json:"quantity" validate:"gte=0"`
	BorrowPrice     float64 `json:"borrowPrice" validate:"gte=0"`
}

// Borrow is the borrow request body.
type Borrow struct {
	Days int `json:"days" validate:"min=1,max=60"`
}
