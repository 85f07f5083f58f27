package api

const createAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["holder_name"],
  "properties": {
    "holder_name": {"type": "string", "minLength": 1, "maxLength": 255}
  }
}`

const transferSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["from_account", "to_account", "amount"],
  "properties": {
    "from_account": {"type": "string", "minLength": 1, "maxLength": 50},
    "to_account": {"type": "string", "minLength": 1, "maxLength": 50},
    "amount": {"type": "number"}
  }
}`
